package rating_test

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/tastemachine/poa-engine/internal/domain/model"
	rating "github.com/tastemachine/poa-engine/internal/domain/rating"
)

func TestExpected(t *testing.T) {
	Convey("Given two Elo means", t, func() {
		Convey("When the means are equal", func() {
			So(rating.Expected(1200, 1200), ShouldEqual, 0.5)
		})

		Convey("When one side is stronger", func() {
			ea := rating.Expected(1400, 1200)
			eb := rating.Expected(1200, 1400)

			Convey("Then the expectations are complementary", func() {
				So(ea, ShouldBeGreaterThan, 0.5)
				So(ea+eb, ShouldAlmostEqual, 1.0, 1e-12)
			})
		})
	})
}

func TestEloDelta(t *testing.T) {
	Convey("Given default params", t, func() {
		p := rating.NewParams()

		Convey("When two equally rated NFTs meet", func() {
			d := p.EloDelta(1200, 1200, model.WeightNormal)

			Convey("Then the winner gains half the K-factor", func() {
				So(d, ShouldAlmostEqual, 16.0, 1e-9)
			})
		})

		Convey("When the favorite wins", func() {
			d := p.EloDelta(1400, 1000, model.WeightNormal)

			Convey("Then the transfer is small", func() {
				So(d, ShouldBeLessThan, 16.0)
				So(d, ShouldBeGreaterThan, 0)
			})
		})

		Convey("When the underdog wins", func() {
			d := p.EloDelta(1000, 1400, model.WeightNormal)

			Convey("Then the transfer is large", func() {
				So(d, ShouldBeGreaterThan, 16.0)
			})
		})

		Convey("When the vote is a super vote", func() {
			normal := p.EloDelta(1200, 1200, model.WeightNormal)
			super := p.EloDelta(1200, 1200, model.WeightSuper)

			Convey("Then the delta doubles", func() {
				So(super, ShouldAlmostEqual, 2*normal, 1e-9)
			})
		})
	})

	Convey("Given a tuned super multiplier", t, func() {
		p := rating.NewParams(rating.WithSuperMultiplier(3))

		Convey("When a super vote lands between equals", func() {
			d := p.EloDelta(1200, 1200, model.WeightSuper)

			Convey("Then the delta scales by the configured factor", func() {
				So(d, ShouldAlmostEqual, 48.0, 1e-9)
			})
		})

		Convey("When the vote is normal", func() {
			d := p.EloDelta(1200, 1200, model.WeightNormal)

			Convey("Then the multiplier does not apply", func() {
				So(d, ShouldAlmostEqual, 16.0, 1e-9)
			})
		})
	})
}

func TestShrinkSigma(t *testing.T) {
	Convey("Given default params", t, func() {
		p := rating.NewParams()

		Convey("When sigma is shrunk repeatedly", func() {
			sigma := model.SigmaStart
			prev := sigma
			for i := 0; i < 500; i++ {
				sigma = p.ShrinkSigma(sigma)

				So(sigma, ShouldBeLessThanOrEqualTo, prev)
				prev = sigma
			}

			Convey("Then it converges toward the floor and never passes it", func() {
				So(sigma, ShouldBeGreaterThanOrEqualTo, 150.0)
				So(sigma, ShouldBeLessThan, 151.0)
			})
		})

		Convey("When sigma is already at the floor", func() {
			So(p.ShrinkSigma(150.0), ShouldEqual, 150.0)
		})
	})
}

func TestWelfordStep(t *testing.T) {
	Convey("Given a fresh slider state", t, func() {
		mean, m2, count := model.SliderStart, 0.0, 0

		Convey("When samples 80 then 60 arrive", func() {
			mean, m2, count = rating.WelfordStep(mean, m2, count, 80)
			mean, m2, count = rating.WelfordStep(mean, m2, count, 60)

			Convey("Then the running stats match the two-sample closed form", func() {
				So(count, ShouldEqual, 2)
				So(mean, ShouldAlmostEqual, 70.0, 1e-9)
				So(m2, ShouldAlmostEqual, 200.0, 1e-9)
			})
		})

		Convey("When identical samples arrive", func() {
			for i := 0; i < 5; i++ {
				mean, m2, count = rating.WelfordStep(mean, m2, count, 42)
			}

			Convey("Then variance stays zero", func() {
				So(mean, ShouldAlmostEqual, 42.0, 1e-9)
				So(m2, ShouldAlmostEqual, 0.0, 1e-9)
			})
		})
	})
}

func TestEloComponent(t *testing.T) {
	Convey("Given the Elo to score rescaling", t, func() {
		Convey("Then the band endpoints map to 0 and 100", func() {
			So(rating.EloComponent(800), ShouldEqual, 0.0)
			So(rating.EloComponent(1400), ShouldEqual, 100.0)
		})

		Convey("Then the starting Elo maps to the band midpoint", func() {
			So(rating.EloComponent(1200), ShouldAlmostEqual, 66.666666, 1e-4)
		})

		Convey("Then values outside the band clamp", func() {
			So(rating.EloComponent(500), ShouldEqual, 0.0)
			So(rating.EloComponent(2900), ShouldEqual, 100.0)
		})
	})
}

func TestComposite(t *testing.T) {
	Convey("Given default params", t, func() {
		p := rating.NewParams()

		Convey("When an NFT has only vote evidence", func() {
			rec := model.NewRatingRecord("nft-1", "apes")
			rec.EloMean = 1400
			rec.TotalVotes = 10
			rec.Wins = 10

			score, conf := p.Composite(&rec)

			Convey("Then the Elo side dominates the blend", func() {
				So(score, ShouldAlmostEqual, 100.0, 1e-9)
				So(conf, ShouldBeGreaterThan, 0.8)
			})
		})

		Convey("When an NFT has only slider evidence", func() {
			rec := model.NewRatingRecord("nft-2", "apes")
			rec.SliderMean = 90
			rec.SliderCount = 10

			score, _ := p.Composite(&rec)

			Convey("Then the slider side dominates the blend", func() {
				So(score, ShouldAlmostEqual, 90.0, 1e-9)
			})
		})

		Convey("When both sides are sparse", func() {
			rec := model.NewRatingRecord("nft-3", "apes")

			score, conf := p.Composite(&rec)

			Convey("Then the blend is an even split of neutral signals", func() {
				// eloComponent(1200) ~ 66.67, slider default 50.
				So(score, ShouldAlmostEqual, 58.3333, 1e-3)
				So(conf, ShouldEqual, 0)
			})
		})

		Convey("When fire taps pile up", func() {
			rec := model.NewRatingRecord("nft-4", "apes")
			rec.FireCount = 100

			boosted, _ := p.Composite(&rec)
			rec.FireCount = 0
			plain, _ := p.Composite(&rec)

			Convey("Then the boost applies but stays capped", func() {
				So(boosted-plain, ShouldAlmostEqual, 5.0, 1e-9)
			})
		})
	})
}

func TestConfidence(t *testing.T) {
	Convey("Given default params", t, func() {
		p := rating.NewParams()

		Convey("Then confidence is increasing in evidence", func() {
			prev := -1.0
			for _, n := range []int{0, 1, 2, 5, 10, 50, 500} {
				c := p.Confidence(n, 0)
				So(c, ShouldBeGreaterThanOrEqualTo, prev)
				prev = c
			}
		})

		Convey("Then confidence never reaches 1.0", func() {
			So(p.Confidence(100000, 100000), ShouldEqual, 0.95)
		})

		Convey("Then sparse evidence is discounted below the saturating curve", func() {
			// With 2 samples the raw curve gives 1-1/3 ~ 0.667; the
			// min-evidence discount scales it by 2/5.
			So(p.Confidence(2, 0), ShouldAlmostEqual, (1.0-1.0/3.0)*(2.0/5.0), 1e-9)
		})
	})
}
