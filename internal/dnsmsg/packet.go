package dnsmsg

import "fmt"

// Limits mirror the bounds a well-formed query or synthesized answer
// from this resolver will ever need; anything larger is refused
// rather than parsed.
const (
	MaxMessageSize  = 4096
	MaxQuestions    = 4
	MaxRRPerSection = 50
)

// Packet is a complete DNS message (RFC 1035 §4).
type Packet struct {
	Header      Header
	Questions   []Question
	Answers     []Record
	Authorities []Record
	Additionals []Record
}

func (p Packet) Marshal() ([]byte, error) {
	h := Header{
		ID:      p.Header.ID,
		Flags:   p.Header.Flags,
		QDCount: uint16(len(p.Questions)),
		ANCount: uint16(len(p.Answers)),
		NSCount: uint16(len(p.Authorities)),
		ARCount: uint16(len(p.Additionals)),
	}
	out := make([]byte, 0, HeaderSize+64)
	out = append(out, h.Marshal()...)
	for _, q := range p.Questions {
		b, err := q.Marshal()
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	}
	for _, sections := range [][]Record{p.Answers, p.Authorities, p.Additionals} {
		for _, rr := range sections {
			b, err := rr.Marshal()
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
	}
	return out, nil
}

func ParsePacket(msg []byte) (Packet, error) {
	if len(msg) > MaxMessageSize {
		return Packet{}, fmt.Errorf("%w: message too large", ErrMalformed)
	}
	off := 0
	h, err := ParseHeader(msg, &off)
	if err != nil {
		return Packet{}, err
	}
	if int(h.QDCount) > MaxQuestions {
		return Packet{}, fmt.Errorf("%w: too many questions", ErrMalformed)
	}

	p := Packet{Header: h}
	for range h.QDCount {
		q, err := ParseQuestion(msg, &off)
		if err != nil {
			return Packet{}, err
		}
		p.Questions = append(p.Questions, q)
	}
	for _, n := range []struct {
		count int
		dst   *[]Record
	}{
		{int(h.ANCount), &p.Answers},
		{int(h.NSCount), &p.Authorities},
		{int(h.ARCount), &p.Additionals},
	} {
		if n.count > MaxRRPerSection {
			return Packet{}, fmt.Errorf("%w: too many resource records", ErrMalformed)
		}
		for range n.count {
			rr, err := ParseRecord(msg, &off)
			if err != nil {
				return Packet{}, err
			}
			*n.dst = append(*n.dst, rr)
		}
	}
	return p, nil
}
