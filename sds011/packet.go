/*
For unpacking and packing SDS011 message packets

PC -> sensor packets are always 19 bytes, sensor -> PC packets are 10 bytes.
Both start with 0xAA and end with 0xAB.
*/

package sds011

import (
	"fmt"
	"strings"
)

// Packet sizes on the wire
const (
	ToSensorSize   = 19
	FromSensorSize = 10
)

const (
	PacketStart = 0xAA
	PacketStop  = 0xAB
)

const (
	CommandIDCmd       = 0xB4
	CommandIDResponse  = 0xC5
	CommandIDDataReply = 0xC0 //First byte in data is not function number
)

// AnyDevice is the device id wildcard accepted by every sensor
const AnyDevice = 0xFFFF

const (
	FunReportingMode = 2 //non-volatile
	FunQueryData     = 4
	FunSetID         = 5 //non-volatile
	FunSleepWork     = 6
	FunVersion       = 7
	FunPeriod        = 8 //non-volatile
)

type Packet struct {
	CommandID byte
	DeviceID  uint16
	Checksum  byte
	Data      []byte
	Valid     bool
}

func (p *Packet) MatchToID(id uint16) bool {
	return p.DeviceID == id || id == AnyDevice || p.DeviceID == AnyDevice //works for sim and client
}

func (p *Packet) String() string {
	if !p.Valid {
		return fmt.Sprintf("<SDS011:INVALID %X>", p.ToBytes())
	}

	kind := "UNKNOWN"
	switch p.CommandID {
	case CommandIDCmd:
		kind = "fromPC"
	case CommandIDResponse:
		kind = "fromSensor"
	case CommandIDDataReply:
		kind = "data"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "<SDS011:%X:%v ", p.DeviceID, kind)
	if len(p.Data) == 0 {
		sb.WriteString("NODATA>")
		return sb.String()
	}

	if p.CommandID == CommandIDDataReply {
		m, err := p.Measurement()
		if err != nil {
			fmt.Fprintf(&sb, "INVALID %v>", err)
		} else {
			fmt.Fprintf(&sb, "pm2.5=%.1f pm10=%.1f>", m.PM25, m.PM10)
		}
		return sb.String()
	}

	if p.IsWrite() {
		sb.WriteString("w:")
	} else {
		sb.WriteString("r:")
	}
	switch p.Data[0] {
	case FunReportingMode:
		if q, _ := p.QueryMode(); q {
			sb.WriteString("mode:QUERY>")
		} else {
			sb.WriteString("mode:ACTIVE>")
		}
	case FunQueryData:
		sb.WriteString("QUERY>")
	case FunSetID:
		id, _ := p.NewID()
		fmt.Fprintf(&sb, "setId:%X>", id)
	case FunSleepWork:
		if w, _ := p.WorkMode(); w {
			sb.WriteString("WORK>")
		} else {
			sb.WriteString("SLEEP>")
		}
	case FunPeriod:
		per, _ := p.Period()
		fmt.Fprintf(&sb, "period=%v>", int(per))
	case FunVersion:
		ver, _ := p.Version()
		sb.WriteString("version:" + ver + ">")
	default:
		fmt.Fprintf(&sb, "INVALIDFUNCTION %v>", p.Data[0])
	}
	return sb.String()
}

// CalcChecksum sums data and device id bytes, modulo 256
func (p *Packet) CalcChecksum() byte {
	result := byte(p.DeviceID & 0xFF)
	result += byte(p.DeviceID >> 8)
	for _, b := range p.Data {
		result += b
	}
	return result
}

func (p *Packet) ChecksumOk() bool {
	return p.Checksum == p.CalcChecksum()
}

// ToBytes always writes the computed checksum, the Checksum field is left as is
func (p Packet) ToBytes() []byte {
	result := make([]byte, 0, 4+len(p.Data)+2)
	result = append(result, PacketStart, p.CommandID)
	result = append(result, p.Data...)
	return append(result, byte(p.DeviceID>>8), byte(p.DeviceID&0xFF), p.CalcChecksum(), PacketStop)
}

// TrimToPacketStart drops line noise before the last start byte
func TrimToPacketStart(input []byte) []byte {
	for i := len(input) - 1; 0 <= i; i-- {
		if input[i] == PacketStart {
			return input[i:]
		}
	}
	return input[:0]
}

// FromBytes requires packet starting with 0xAA and ending with 0xAB.
// Accepts both directions, size decides.
func (p *Packet) FromBytes(arr []byte) error {
	p.Valid = false

	if len(arr) != FromSensorSize && len(arr) != ToSensorSize {
		return fmt.Errorf("invalid data size %v", len(arr))
	}
	if arr[0] != PacketStart {
		return fmt.Errorf("invalid packet header %X", arr[0])
	}
	if arr[len(arr)-1] != PacketStop {
		return fmt.Errorf("invalid packet termination %X", arr[len(arr)-1])
	}
	p.CommandID = arr[1]
	p.Checksum = arr[len(arr)-2]
	p.DeviceID = uint16(arr[len(arr)-3]) + uint16(arr[len(arr)-4])<<8
	p.Data = append([]byte(nil), arr[2:len(arr)-4]...)

	switch p.CommandID {
	case CommandIDCmd:
		if len(arr) != ToSensorSize {
			return fmt.Errorf("expect %v long packet for command id 0x%X", ToSensorSize, CommandIDCmd)
		}
		switch p.Data[0] {
		case FunReportingMode, FunQueryData, FunSetID, FunSleepWork, FunPeriod, FunVersion:
		default:
			return fmt.Errorf("function %v not supported with command id 0x%X", p.Data[0], p.CommandID)
		}

	case CommandIDResponse:
		if len(arr) != FromSensorSize {
			return fmt.Errorf("expect %v long packet for command id 0x%X", FromSensorSize, CommandIDResponse)
		}
		//no reply to query data, that one comes as data reply
		switch p.Data[0] {
		case FunReportingMode, FunSetID, FunSleepWork, FunPeriod, FunVersion:
		default:
			return fmt.Errorf("function %v not supported with command id 0x%X", p.Data[0], p.CommandID)
		}

	case CommandIDDataReply:
		if len(arr) != FromSensorSize {
			return fmt.Errorf("expect %v long packet for command id 0x%X", FromSensorSize, CommandIDDataReply)
		}

	default:
		return fmt.Errorf("command id 0x%X is not supported", p.CommandID)
	}

	if !p.ChecksumOk() {
		return fmt.Errorf("checksum error")
	}
	p.Valid = true
	return nil
}

func boolToByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func command(deviceID uint16, data ...byte) Packet {
	payload := make([]byte, 13)
	copy(payload, data)
	return Packet{CommandID: CommandIDCmd, DeviceID: deviceID, Data: payload, Valid: true}
}

func reply(deviceID uint16, data ...byte) Packet {
	payload := make([]byte, 4)
	copy(payload, data)
	return Packet{CommandID: CommandIDResponse, DeviceID: deviceID, Data: payload, Valid: true}
}

/*
Set data reporting mode
*/

func NewPacketSetQueryMode(deviceID uint16, write bool, query bool) Packet {
	return command(deviceID, FunReportingMode, boolToByte(write), boolToByte(query))
}

func NewPacketSetQueryModeReply(deviceID uint16, write bool, query bool) Packet {
	return reply(deviceID, FunReportingMode, boolToByte(write), boolToByte(query))
}

func (p *Packet) function(fun byte) error {
	if !p.Valid {
		return fmt.Errorf("invalid packet")
	}
	if len(p.Data) < 4 {
		return fmt.Errorf("packet data too short %v", len(p.Data))
	}
	if p.Data[0] != fun {
		return fmt.Errorf("function number is not %v, it is %v", fun, p.Data[0])
	}
	return nil
}

func (p *Packet) QueryMode() (bool, error) {
	if err := p.function(FunReportingMode); err != nil {
		return false, err
	}
	return 0 < p.Data[2], nil
}

// IsWrite reports if command sets a value. Some commands have write and read modes
func (p *Packet) IsWrite() bool {
	if len(p.Data) < 2 {
		return false
	}
	f := p.Data[0]
	if f == FunReportingMode || f == FunSleepWork || f == FunPeriod {
		return 0 < p.Data[1]
	}
	return f == FunSetID
}

/*
Query data command
*/

func NewPacketQueryData(deviceID uint16) Packet {
	return command(deviceID, FunQueryData)
}

func NewPacketDataReply(deviceID uint16, pm25 uint16, pm10 uint16) Packet {
	return Packet{
		CommandID: CommandIDDataReply,
		DeviceID:  deviceID,
		Data:      []byte{byte(pm25 & 0xFF), byte(pm25 >> 8), byte(pm10 & 0xFF), byte(pm10 >> 8)},
		Valid:     true,
	}
}

func (p *Packet) Measurement() (Measurement, error) {
	if !p.Valid {
		return NaNMeasurement(), fmt.Errorf("invalid packet")
	}
	if p.CommandID != CommandIDDataReply {
		return NaNMeasurement(), fmt.Errorf("not measurement packet command id=0x%X", p.CommandID)
	}
	if len(p.Data) < 4 {
		return NaNMeasurement(), fmt.Errorf("measurement data too short %v", len(p.Data))
	}
	return Measurement{
		PM25: float64(uint16(p.Data[0])+uint16(p.Data[1])*256) / 10,
		PM10: float64(uint16(p.Data[2])+uint16(p.Data[3])*256) / 10,
	}, nil
}

/*
Set device id. Unique from factory, changing it makes things messy
*/

func NewPacketSetID(deviceID uint16, newDeviceID uint16) Packet {
	return command(deviceID, FunSetID, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, byte(newDeviceID>>8), byte(newDeviceID&0xFF))
}

func NewPacketSetIDReply(deviceID uint16) Packet {
	return reply(deviceID, FunSetID)
}

func (p *Packet) NewID() (uint16, error) {
	if err := p.function(FunSetID); err != nil {
		return 0, err
	}
	switch p.CommandID {
	case CommandIDCmd:
		if len(p.Data) < 13 {
			return 0, fmt.Errorf("invalid data length of set id packet")
		}
		return uint16(p.Data[11])<<8 + uint16(p.Data[12]), nil
	case CommandIDResponse:
		return p.DeviceID, nil
	}
	return 0, fmt.Errorf("invalid command id %X", p.CommandID)
}

/*
Set device sleep and work
*/

func NewPacketSetWorkMode(deviceID uint16, write bool, work bool) Packet {
	return command(deviceID, FunSleepWork, boolToByte(write), boolToByte(work))
}

func NewPacketSetWorkModeReply(deviceID uint16, write bool, work bool) Packet {
	return reply(deviceID, FunSleepWork, boolToByte(write), boolToByte(work))
}

// WorkMode true means working, false sleeping
func (p *Packet) WorkMode() (bool, error) {
	if err := p.function(FunSleepWork); err != nil {
		return false, err
	}
	return 0 < p.Data[2], nil
}

/*
Set working period
*/

func NewPacketSetPeriod(deviceID uint16, write bool, period byte) Packet {
	return command(deviceID, FunPeriod, boolToByte(write), period)
}

func NewPacketSetPeriodReply(deviceID uint16, write bool, period byte) Packet {
	return reply(deviceID, FunPeriod, boolToByte(write), period)
}

func (p *Packet) Period() (byte, error) {
	if err := p.function(FunPeriod); err != nil {
		return 0, err
	}
	return p.Data[2], nil
}

/*
Firmware version
*/

func NewPacketQueryVersion(deviceID uint16) Packet {
	return command(deviceID, FunVersion)
}

func NewPacketQueryVersionReply(deviceID uint16, year byte, month byte, day byte) Packet {
	return reply(deviceID, FunVersion, year, month, day)
}

func (p *Packet) Version() (string, error) {
	if err := p.function(FunVersion); err != nil {
		return "", err
	}
	return fmt.Sprintf("%v.%v.%v", p.Data[1], p.Data[2], p.Data[3]), nil
}
