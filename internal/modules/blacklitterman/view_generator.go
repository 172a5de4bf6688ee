package blacklitterman

import (
	"github.com/rs/zerolog"

	"github.com/anjeshnu/quantfolio/internal/modules/timeseries"
	"github.com/anjeshnu/quantfolio/pkg/formulas"
)

// Momentum view generation thresholds.
const (
	rsiOverbought    = 70.0
	rsiOversold      = 30.0
	defaultRSILength = 14
	// viewScale converts RSI distance from neutral into a return tilt.
	viewScale = 0.10
)

// MomentumViewGenerator derives absolute views from RSI levels on the
// estimation window. Oversold assets get a positive view, overbought assets
// a negative one; assets in between contribute no view and stay at the
// prior.
type MomentumViewGenerator struct {
	rsiLength int
	log       zerolog.Logger
}

// NewMomentumViewGenerator creates a momentum view generator. A
// non-positive rsiLength falls back to 14.
func NewMomentumViewGenerator(rsiLength int, log zerolog.Logger) *MomentumViewGenerator {
	if rsiLength <= 0 {
		rsiLength = defaultRSILength
	}
	return &MomentumViewGenerator{
		rsiLength: rsiLength,
		log:       log.With().Str("component", "view_generator").Logger(),
	}
}

// GenerateViews builds views for the assets in the window whose RSI is
// outside the neutral band. priorReturns supplies the anchor each view
// tilts away from, in window symbol order.
func (g *MomentumViewGenerator) GenerateViews(window timeseries.Panel, priorReturns []float64) []View {
	views := make([]View, 0)

	for i, symbol := range window.Symbols {
		if i >= len(priorReturns) {
			break
		}

		// RSI operates on a value series; compound the returns.
		curve := formulas.EquityCurve(window.Data[symbol])
		rsi := formulas.RSI(curve, g.rsiLength)
		if rsi == nil {
			continue
		}

		switch {
		case *rsi <= rsiOversold:
			strength := (rsiOversold - *rsi) / rsiOversold // 0..1
			views = append(views, AbsoluteView{
				Symbol: symbol,
				Return: priorReturns[i] + strength*viewScale,
				Conf:   0.3 + 0.5*strength,
			})
		case *rsi >= rsiOverbought:
			strength := (*rsi - rsiOverbought) / (100 - rsiOverbought) // 0..1
			views = append(views, AbsoluteView{
				Symbol: symbol,
				Return: priorReturns[i] - strength*viewScale,
				Conf:   0.3 + 0.5*strength,
			})
		}
	}

	if len(views) > 0 {
		g.log.Debug().
			Int("num_views", len(views)).
			Msg("Generated momentum views")
	}
	return views
}
