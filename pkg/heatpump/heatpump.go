package heatpump

import (
	"fmt"

	"github.com/heatwise-se/controller/pkg/curve"
	"github.com/heatwise-se/controller/pkg/modbusclient"
	"github.com/sirupsen/logrus"
)

// Reading is one snapshot of the hydronic loop. Spread is flow minus return,
// the proxy for how much heat the loop is actually delivering.
type Reading struct {
	FlowTemp   *float64 `json:"flowTemp,omitempty"`
	ReturnTemp *float64 `json:"returnTemp,omitempty"`
	Outdoor    *float64 `json:"outdoor,omitempty"`
	Spread     *float64 `json:"spread,omitempty"`
}

func (r Reading) Map() map[string]interface{} {
	m := make(map[string]interface{})
	if r.FlowTemp != nil {
		m["flowTemp"] = *r.FlowTemp
	}
	if r.ReturnTemp != nil {
		m["returnTemp"] = *r.ReturnTemp
	}
	if r.Outdoor != nil {
		m["outdoor"] = *r.Outdoor
	}
	if r.Spread != nil {
		m["spread"] = *r.Spread
	}
	return m
}

// Pump talks to a heat pump exposing thermia genesis compatible registers.
type Pump struct {
	client   modbusclient.Client
	readonly bool
}

func New(client modbusclient.Client, readonly bool) *Pump {
	return &Pump{
		client:   client,
		readonly: readonly,
	}
}

func (p *Pump) Read() (*Reading, error) {
	r := &Reading{}
	var err error

	r.FlowTemp, err = scale100itof(p.client.ReadInputRegister(9)) // input reg 9 condenser out
	if err != nil {
		return r, err
	}
	r.ReturnTemp, err = scale100itof(p.client.ReadInputRegister(8)) // input reg 8 condenser in
	if err != nil {
		return r, err
	}
	r.Outdoor, err = scale100itof(p.client.ReadInputRegister(13)) // input reg 13 outdoor temp
	if err != nil {
		return r, err
	}

	spread := *r.FlowTemp - *r.ReturnTemp
	r.Spread = &spread
	return r, nil
}

// HeatCurve reads the current 7 point curve and the comfort wheel offset.
func (p *Pump) HeatCurve() (curve.Curve, float64, error) {
	// holding reg 5 comfort wheel, 6-12 curve points Y1 (warmest) to Y7 (coldest)
	data, err := p.client.ReadHoldingRegisterRaw(6, 7)
	if err != nil {
		return curve.Curve{}, 0, err
	}
	c := decodeHeatCurve(data)

	wheel, err := p.client.ReadHoldingRegister(5)
	if err != nil {
		return curve.Curve{}, 0, err
	}

	return c, float64(wheel)/100.0 - c[0], nil
}

// SeasonStopTemperature reads the outdoor temperature above which the pump
// considers the heating season over.
func (p *Pump) SeasonStopTemperature() (float64, error) {
	v, err := p.client.ReadHoldingRegister(16)
	if err != nil {
		return 0, err
	}
	return float64(v) / 100.0, nil
}

// Apply writes a recommended curve back to the pump. The points are written
// as-is and the level offset goes into the comfort wheel alone, which is how
// the pump models a parallel shift. Keeping the offset out of the points
// means the next HeatCurve read derives the same cumulative adjust back.
func (p *Pump) Apply(rec curve.Recommendation) error {
	if p.readonly {
		logrus.Info("heatpump: readonly, skipping curve write")
		return nil
	}

	_, err := p.client.WriteSingleRegister(5, uint16((rec.Curve[0]+rec.Adjust)*100))
	if err != nil {
		return fmt.Errorf("error writing comfort wheel: %w", err)
	}

	for i, y := range rec.Curve {
		_, err := p.client.WriteSingleRegister(uint16(6+i), uint16(y*100))
		if err != nil {
			return fmt.Errorf("error writing curve point %d: %w", i, err)
		}
	}
	return nil
}

func decodeHeatCurve(data []byte) curve.Curve {
	var c curve.Curve
	for i := range c {
		c[i] = float64(modbusclient.Decode(data[i*2:i*2+2])) / 100.0
	}
	return c
}

func scale100itof(i int, err error) (*float64, error) {
	f := float64(i) / 100.0
	return &f, err
}
