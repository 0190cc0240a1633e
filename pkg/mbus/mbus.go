package mbus

import (
	"strconv"
	"sync"
	"time"

	"github.com/jonaz/gombus"
)

// HeatData is one readout from a wired M-Bus heat meter. Heat meters measure
// the loop directly, so flow and return temperature come from the same
// device that bills the energy.
type HeatData struct {
	Id         string    `json:"id"`
	Model      string    `json:"model"`
	Time       time.Time `json:"time"`
	FlowTemp   float64   `json:"flowTemp,omitempty"`
	ReturnTemp float64   `json:"returnTemp,omitempty"`
	Energy_WH  float64   `json:"wh,omitempty"`
	Volume_M3  float64   `json:"m3,omitempty"`
}

// Spread is flow minus return temperature.
func (d HeatData) Spread() float64 {
	return d.FlowTemp - d.ReturnTemp
}

type Mbus struct {
	device string
	conn   gombus.Conn
	mutex  *sync.Mutex
}

func New(device string) *Mbus {
	return &Mbus{
		device: device,
		mutex:  &sync.Mutex{},
	}
}

func (m *Mbus) init() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.conn != nil {
		return nil
	}
	c, err := gombus.DialSerial(m.device)
	if err != nil {
		return err
	}
	m.conn = c
	return nil
}

func (m *Mbus) Close() error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if m.conn != nil {
		err := m.conn.Close()
		m.conn = nil
		return err
	}
	return nil
}

func (m *Mbus) ReadValues(model, idStr string) (*HeatData, error) {
	err := m.init()
	if err != nil {
		return nil, err
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return nil, err
	}

	frame, err := m.read(id)
	if err != nil {
		return nil, err
	}

	data := &HeatData{
		Id:    idStr,
		Model: model,
		Time:  time.Now(),
	}
	switch model {
	case "kamstrup-multical-403":
		data.Energy_WH = frame.DataRecords[0].Value
		data.Volume_M3 = frame.DataRecords[1].Value
		data.FlowTemp = frame.DataRecords[5].Value
		data.ReturnTemp = frame.DataRecords[6].Value
	}

	return data, nil
}

func (m *Mbus) read(primaryAddr int) (*gombus.DecodedFrame, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	_, err := m.conn.Write(gombus.SndNKE(uint8(primaryAddr)))
	if err != nil {
		return nil, err
	}

	err = m.conn.SetReadDeadline(time.Now().Add(1 * time.Second))
	if err != nil {
		return nil, err
	}

	_, err = gombus.ReadSingleCharFrame(m.conn)
	if err != nil {
		return nil, err
	}

	return gombus.ReadSingleFrame(m.conn, primaryAddr)
}
