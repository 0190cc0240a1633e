package heatpump

import (
	"testing"

	"github.com/heatwise-se/controller/pkg/curve"
	"github.com/stretchr/testify/assert"
)

type fakeClient struct {
	input   map[uint16]int
	holding map[uint16]int
	raw     map[uint16][]byte
	written map[uint16]uint16
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		input:   map[uint16]int{},
		holding: map[uint16]int{},
		raw:     map[uint16][]byte{},
		written: map[uint16]uint16{},
	}
}

func (f *fakeClient) ReadInputRegister(address uint16) (int, error) {
	return f.input[address], nil
}
func (f *fakeClient) ReadHoldingRegister(address uint16) (int, error) {
	if v, ok := f.written[address]; ok {
		return int(v), nil
	}
	return f.holding[address], nil
}
func (f *fakeClient) ReadHoldingRegisterRaw(address, count uint16) ([]byte, error) {
	if len(f.written) == 0 {
		return f.raw[address], nil
	}
	data := make([]byte, 0, count*2)
	for i := uint16(0); i < count; i++ {
		v, ok := f.written[address+i]
		if !ok {
			v = uint16(f.holding[address+i])
		}
		data = append(data, byte(v>>8), byte(v))
	}
	return data, nil
}
func (f *fakeClient) WriteSingleRegister(address, value uint16) ([]byte, error) {
	f.written[address] = value
	return nil, nil
}
func (f *fakeClient) WriteSingleCoil(address, value uint16) (int, error) {
	f.written[address] = value
	return 0, nil
}

func TestRead(t *testing.T) {
	cli := newFakeClient()
	cli.input[9] = 4250  // flow 42.50
	cli.input[8] = 3310  // return 33.10
	cli.input[13] = -550 // outdoor -5.50

	p := New(cli, true)
	r, err := p.Read()
	assert.NoError(t, err)
	assert.Equal(t, 42.5, *r.FlowTemp)
	assert.Equal(t, 33.1, *r.ReturnTemp)
	assert.Equal(t, -5.5, *r.Outdoor)
	assert.InDelta(t, 9.4, *r.Spread, 1e-9)

	m := r.Map()
	assert.InDelta(t, 9.4, m["spread"].(float64), 1e-9)
	assert.Equal(t, -5.5, m["outdoor"])
}

func TestDecodeHeatCurve(t *testing.T) {
	data := []byte{0x07, 0x6c, 0x0a, 0x28, 0x0c, 0x1c, 0x0d, 0xac, 0x0e, 0xd8, 0x11, 0x94, 0x14, 0x50}
	assert.Equal(t, curve.Curve{19, 26, 31, 35, 38, 45, 52}, decodeHeatCurve(data))
}

func TestHeatCurve(t *testing.T) {
	cli := newFakeClient()
	cli.raw[6] = []byte{0x07, 0x6c, 0x0a, 0x28, 0x0c, 0x1c, 0x0d, 0xac, 0x0e, 0xd8, 0x11, 0x94, 0x14, 0x50}
	cli.holding[5] = 2000 // comfort wheel 20.0, curve starts at 19.0

	p := New(cli, true)
	c, adjust, err := p.HeatCurve()
	assert.NoError(t, err)
	assert.Equal(t, curve.Curve{19, 26, 31, 35, 38, 45, 52}, c)
	assert.InDelta(t, 1.0, adjust, 1e-9)
}

func TestApply(t *testing.T) {
	cli := newFakeClient()
	p := New(cli, false)

	err := p.Apply(curve.Recommendation{
		Curve:  curve.Curve{20, 26, 31, 35, 38, 45, 52},
		Adjust: 1,
	})
	assert.NoError(t, err)
	assert.Equal(t, uint16(2100), cli.written[5]) // wheel carries the offset
	assert.Equal(t, uint16(2000), cli.written[6]) // points stay raw
	assert.Equal(t, uint16(2600), cli.written[7])
	assert.Equal(t, uint16(5200), cli.written[12])
}

func TestApplyRoundTripsAdjust(t *testing.T) {
	cli := newFakeClient()
	p := New(cli, false)

	err := p.Apply(curve.Recommendation{
		Curve:  curve.Curve{20, 26, 31, 35, 38, 45, 52},
		Adjust: 0.5,
	})
	assert.NoError(t, err)

	c, adjust, err := p.HeatCurve()
	assert.NoError(t, err)
	assert.Equal(t, curve.Curve{20, 26, 31, 35, 38, 45, 52}, c)
	assert.InDelta(t, 0.5, adjust, 1e-9)
}

func TestSeasonStopTemperature(t *testing.T) {
	cli := newFakeClient()
	cli.holding[16] = 1300

	p := New(cli, true)
	stop, err := p.SeasonStopTemperature()
	assert.NoError(t, err)
	assert.Equal(t, 13.0, stop)
}

func TestApplyReadonly(t *testing.T) {
	cli := newFakeClient()
	p := New(cli, true)

	err := p.Apply(curve.Recommendation{Curve: curve.Curve{20, 26, 31, 35, 38, 45, 52}})
	assert.NoError(t, err)
	assert.Empty(t, cli.written)
}
