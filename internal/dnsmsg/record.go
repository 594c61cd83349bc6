package dnsmsg

import (
	"encoding/binary"
	"fmt"
)

// Record is a DNS resource record, trimmed to the types the curated
// local zone and CLI tools produce or print: A, AAAA, CNAME, NS, SOA.
//
// Data holds a type-specific payload:
//   - A, AAAA: []byte (4 or 16 bytes)
//   - CNAME, NS: string
//   - SOA: SOAData
type Record struct {
	Name  string
	Type  uint16
	Class uint16
	TTL   uint32
	Data  any
}

// SOAData is the rdata of a Start-of-Authority record.
type SOAData struct {
	MName   string
	RName   string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

func ParseRecord(msg []byte, off *int) (Record, error) {
	name, err := DecodeName(msg, off)
	if err != nil {
		return Record{}, err
	}
	if *off+10 > len(msg) {
		return Record{}, fmt.Errorf("%w: unexpected EOF reading record", ErrMalformed)
	}
	rrType := binary.BigEndian.Uint16(msg[*off : *off+2])
	rrClass := binary.BigEndian.Uint16(msg[*off+2 : *off+4])
	ttl := binary.BigEndian.Uint32(msg[*off+4 : *off+8])
	rdlen := binary.BigEndian.Uint16(msg[*off+8 : *off+10])
	*off += 10
	start := *off
	if start+int(rdlen) > len(msg) {
		return Record{}, fmt.Errorf("%w: unexpected EOF reading rdata", ErrMalformed)
	}

	var data any
	switch RecordType(rrType) {
	case TypeCNAME, TypeNS:
		n, err := DecodeName(msg, off)
		if err != nil {
			return Record{}, err
		}
		data = n
	case TypeSOA:
		soa, err := parseSOA(msg, off)
		if err != nil {
			return Record{}, err
		}
		data = soa
	default:
		b := make([]byte, rdlen)
		copy(b, msg[start:start+int(rdlen)])
		*off = start + int(rdlen)
		data = b
	}
	if *off != start+int(rdlen) {
		return Record{}, fmt.Errorf("%w: rdata length mismatch for type %d", ErrMalformed, rrType)
	}

	return Record{Name: name, Type: rrType, Class: rrClass, TTL: ttl, Data: data}, nil
}

func parseSOA(msg []byte, off *int) (SOAData, error) {
	mname, err := DecodeName(msg, off)
	if err != nil {
		return SOAData{}, err
	}
	rname, err := DecodeName(msg, off)
	if err != nil {
		return SOAData{}, err
	}
	if *off+20 > len(msg) {
		return SOAData{}, fmt.Errorf("%w: unexpected EOF reading SOA fields", ErrMalformed)
	}
	soa := SOAData{
		MName:   mname,
		RName:   rname,
		Serial:  binary.BigEndian.Uint32(msg[*off : *off+4]),
		Refresh: binary.BigEndian.Uint32(msg[*off+4 : *off+8]),
		Retry:   binary.BigEndian.Uint32(msg[*off+8 : *off+12]),
		Expire:  binary.BigEndian.Uint32(msg[*off+12 : *off+16]),
		Minimum: binary.BigEndian.Uint32(msg[*off+16 : *off+20]),
	}
	*off += 20
	return soa, nil
}

func (rr Record) Marshal() ([]byte, error) {
	nameWire, err := EncodeName(rr.Name)
	if err != nil {
		return nil, err
	}
	rdata, err := rr.marshalRData()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(nameWire)+10+len(rdata))
	out = append(out, nameWire...)
	fixed := make([]byte, 10)
	binary.BigEndian.PutUint16(fixed[0:2], rr.Type)
	binary.BigEndian.PutUint16(fixed[2:4], rr.Class)
	binary.BigEndian.PutUint32(fixed[4:8], rr.TTL)
	binary.BigEndian.PutUint16(fixed[8:10], uint16(len(rdata)))
	out = append(out, fixed...)
	return append(out, rdata...), nil
}

func (rr Record) marshalRData() ([]byte, error) {
	switch RecordType(rr.Type) {
	case TypeA:
		b, ok := rr.Data.([]byte)
		if !ok || len(b) != 4 {
			return nil, fmt.Errorf("%w: A record data must be 4 bytes", ErrMalformed)
		}
		return b, nil
	case TypeAAAA:
		b, ok := rr.Data.([]byte)
		if !ok || len(b) != 16 {
			return nil, fmt.Errorf("%w: AAAA record data must be 16 bytes", ErrMalformed)
		}
		return b, nil
	case TypeCNAME, TypeNS:
		s, ok := rr.Data.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("%w: name-based record data must be non-empty", ErrMalformed)
		}
		return EncodeName(s)
	case TypeSOA:
		soa, ok := rr.Data.(SOAData)
		if !ok {
			return nil, fmt.Errorf("%w: SOA record data must be SOAData", ErrMalformed)
		}
		mname, err := EncodeName(soa.MName)
		if err != nil {
			return nil, err
		}
		rname, err := EncodeName(soa.RName)
		if err != nil {
			return nil, err
		}
		out := make([]byte, 0, len(mname)+len(rname)+20)
		out = append(out, mname...)
		out = append(out, rname...)
		tail := make([]byte, 20)
		binary.BigEndian.PutUint32(tail[0:4], soa.Serial)
		binary.BigEndian.PutUint32(tail[4:8], soa.Refresh)
		binary.BigEndian.PutUint32(tail[8:12], soa.Retry)
		binary.BigEndian.PutUint32(tail[12:16], soa.Expire)
		binary.BigEndian.PutUint32(tail[16:20], soa.Minimum)
		return append(out, tail...), nil
	default:
		if b, ok := rr.Data.([]byte); ok {
			return b, nil
		}
		return nil, fmt.Errorf("%w: unsupported record type for marshal: %d", ErrMalformed, rr.Type)
	}
}

// IPv4 returns the dotted-quad form of an A record, or ok=false if rr
// is not a well-formed A record.
func (rr Record) IPv4() (string, bool) {
	if RecordType(rr.Type) != TypeA {
		return "", false
	}
	b, ok := rr.Data.([]byte)
	if !ok || len(b) != 4 {
		return "", false
	}
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3]), true
}
