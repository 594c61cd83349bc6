package localzone

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jroosing/dnsfwd/internal/dnsmsg"
)

func buildQuery(id uint16, name string, qtype dnsmsg.RecordType) []byte {
	pkt := dnsmsg.Packet{
		Header:    dnsmsg.Header{ID: id, Flags: dnsmsg.RDFlag},
		Questions: []dnsmsg.Question{{Name: name, Type: uint16(qtype), Class: uint16(dnsmsg.ClassIN)}},
	}
	b, err := pkt.Marshal()
	if err != nil {
		panic(err)
	}
	return b
}

func TestSynthesizeDirectARecord(t *testing.T) {
	z := New()
	z.Load(map[string][]Record{
		"router.lan.": {{Type: dnsmsg.TypeA, Value: "10.0.0.1", TTL: 60}},
	})

	reply, ok := Synthesize(z, buildQuery(0xABCD, "router.lan.", dnsmsg.TypeA))
	require.True(t, ok)

	resp, err := dnsmsg.ParsePacket(reply)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xABCD), resp.Header.ID)
	assert.NotZero(t, resp.Header.Flags&dnsmsg.QRFlag)
	assert.NotZero(t, resp.Header.Flags&dnsmsg.AAFlag)
	require.Len(t, resp.Answers, 1)
	ip, ok := resp.Answers[0].IPv4()
	require.True(t, ok)
	assert.Equal(t, "10.0.0.1", ip)
}

func TestSynthesizeMissFallsThrough(t *testing.T) {
	z := New()
	z.Load(map[string][]Record{"router.lan.": {{Type: dnsmsg.TypeA, Value: "10.0.0.1"}}})

	_, ok := Synthesize(z, buildQuery(1, "unknown.example.com.", dnsmsg.TypeA))
	assert.False(t, ok, "names with no curated entry must fall through to cache/forwarder")
}

func TestSynthesizeChasesCNAME(t *testing.T) {
	z := New()
	z.Load(map[string][]Record{
		"alias.lan.":  {{Type: dnsmsg.TypeCNAME, Value: "router.lan."}},
		"router.lan.": {{Type: dnsmsg.TypeA, Value: "10.0.0.1"}},
	})

	reply, ok := Synthesize(z, buildQuery(2, "alias.lan.", dnsmsg.TypeA))
	require.True(t, ok)

	resp, err := dnsmsg.ParsePacket(reply)
	require.NoError(t, err)
	require.Len(t, resp.Answers, 2)
	assert.Equal(t, "alias.lan", resp.Answers[0].Name)
	assert.Equal(t, uint16(dnsmsg.TypeCNAME), resp.Answers[0].Type)
	assert.Equal(t, "router.lan", resp.Answers[1].Name)
	assert.Equal(t, uint16(dnsmsg.TypeA), resp.Answers[1].Type)
}

func TestSynthesizeRequestedTypeNotCurated(t *testing.T) {
	z := New()
	z.Load(map[string][]Record{"router.lan.": {{Type: dnsmsg.TypeA, Value: "10.0.0.1"}}})

	_, ok := Synthesize(z, buildQuery(3, "router.lan.", dnsmsg.TypeAAAA))
	assert.False(t, ok, "a name curated only for A must not answer an AAAA query")
}

func TestLoadReplacesPreviousContents(t *testing.T) {
	z := New()
	z.Load(map[string][]Record{"old.lan.": {{Type: dnsmsg.TypeA, Value: "1.1.1.1"}}})
	z.Load(map[string][]Record{"new.lan.": {{Type: dnsmsg.TypeA, Value: "2.2.2.2"}}})

	_, ok := Synthesize(z, buildQuery(4, "old.lan.", dnsmsg.TypeA))
	assert.False(t, ok, "Load must discard records from a prior generation")
}
