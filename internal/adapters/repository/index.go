package repository

import "math"

// Treap-based ranked index over the per-NFT ranking score.
//
// Ordering: score DESC, then NFT id ASC (deterministic). The BST
// comparator treats "less" as "ranks earlier", so in-order traversal
// yields the leaderboard from best to worst. Node sizes are maintained so
// Rank resolves in O(log n).

// scoreScale converts float scores to fixed point; nine decimal places is
// far beyond the resolution of any score the engine produces.
const scoreScale = 1_000_000_000

type scoreFP int64

func toFixedPoint(x float64) scoreFP {
	if math.IsNaN(x) {
		return 0
	}
	scaled := math.Round(x * scoreScale)
	if scaled >= float64(math.MaxInt64) {
		return scoreFP(math.MaxInt64)
	}
	if scaled <= float64(math.MinInt64) {
		return scoreFP(math.MinInt64)
	}
	return scoreFP(scaled)
}

type treapNode struct {
	id    string
	score scoreFP
	prio  uint64
	left  *treapNode
	right *treapNode
	size  int
}

func nodeSize(n *treapNode) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fixSize(n *treapNode) {
	if n != nil {
		n.size = 1 + nodeSize(n.left) + nodeSize(n.right)
	}
}

// ranksBefore returns true if (aScore, aID) appears before (bScore, bID)
// in the leaderboard.
func ranksBefore(aScore scoreFP, aID string, bScore scoreFP, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *treapNode) *treapNode {
	x := y.left
	y.left = x.right
	x.right = y
	fixSize(y)
	fixSize(x)
	return x
}

func rotateLeft(x *treapNode) *treapNode {
	y := x.right
	x.right = y.left
	y.left = x
	fixSize(x)
	fixSize(y)
	return y
}

func treapInsert(n *treapNode, id string, score scoreFP, prio uint64) *treapNode {
	if n == nil {
		return &treapNode{id: id, score: score, prio: prio, size: 1}
	}
	if ranksBefore(score, id, n.score, n.id) {
		n.left = treapInsert(n.left, id, score, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = treapInsert(n.right, id, score, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fixSize(n)
	return n
}

func treapDelete(n *treapNode, id string, score scoreFP) *treapNode {
	if n == nil {
		return nil
	}
	if score == n.score && id == n.id {
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = treapDelete(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = treapDelete(n.left, id, score)
		}
	} else if ranksBefore(score, id, n.score, n.id) {
		n.left = treapDelete(n.left, id, score)
	} else {
		n.right = treapDelete(n.right, id, score)
	}
	fixSize(n)
	return n
}

// treapRank returns the 1-based position of (id, score), or 0 if absent.
func treapRank(n *treapNode, id string, score scoreFP) int {
	rank := 1
	for n != nil {
		switch {
		case score == n.score && id == n.id:
			return rank + nodeSize(n.left)
		case ranksBefore(score, id, n.score, n.id):
			n = n.left
		default:
			rank += nodeSize(n.left) + 1
			n = n.right
		}
	}
	return 0
}

// walkInOrder visits ids from best to worst until visit returns false.
func walkInOrder(n *treapNode, visit func(id string) bool) bool {
	if n == nil {
		return true
	}
	if !walkInOrder(n.left, visit) {
		return false
	}
	if !visit(n.id) {
		return false
	}
	return walkInOrder(n.right, visit)
}
