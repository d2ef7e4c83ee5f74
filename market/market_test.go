package market

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBillParamsValidate(t *testing.T) {
	t.Parallel()

	good := BillParams{
		Asset:             100,
		Price:             1,
		Capacity:          10,
		MinServiceWeeks:   1,
		MaxServiceWeeks:   10,
		DepositMultiplier: 2,
	}
	require.NoError(t, good.Validate())

	for name, mutate := range map[string]func(*BillParams){
		"zero asset":              func(p *BillParams) { p.Asset = 0 },
		"zero price":              func(p *BillParams) { p.Price = 0 },
		"zero capacity":           func(p *BillParams) { p.Capacity = 0 },
		"asset not multiple":      func(p *BillParams) { p.Capacity = 33 },
		"zero min weeks":          func(p *BillParams) { p.MinServiceWeeks = 0 },
		"min above max":           func(p *BillParams) { p.MinServiceWeeks = 11 },
		"zero deposit multiplier": func(p *BillParams) { p.DepositMultiplier = 0 },
	} {
		p := good
		mutate(&p)
		require.Error(t, p.Validate(), name)
	}
}

func TestOrderPhase(t *testing.T) {
	t.Parallel()

	var o Order
	require.Equal(t, OrderPending, o.Phase())
	require.False(t, o.Active())

	o.Commitment = Commitment{MerkleRoot: Hash{1}, PieceSize: 1, LeafCount: 1}
	o.CommittedBy = "consumer"
	require.Equal(t, OrderCommitted, o.Phase())
	require.False(t, o.Active())

	o.ActivatedAt = time.Now()
	require.Equal(t, OrderActive, o.Phase())
	require.True(t, o.Active())

	require.Equal(t, "pending", OrderPending.String())
	require.Equal(t, "committed", OrderCommitted.String())
	require.Equal(t, "active", OrderActive.String())
	require.Equal(t, "invalid", OrderPhase(42).String())
}

func TestCommitmentValidate(t *testing.T) {
	t.Parallel()

	c := Commitment{MerkleRoot: Hash{1}, PieceSize: 1 << 20, LeafCount: 8}
	require.NoError(t, c.Validate())
	require.True(t, c.Equal(c))
	require.False(t, c.Equal(Commitment{MerkleRoot: Hash{2}, PieceSize: 1 << 20, LeafCount: 8}))

	require.Error(t, Commitment{PieceSize: 1, LeafCount: 1}.Validate())
	require.Error(t, Commitment{MerkleRoot: Hash{1}, LeafCount: 1}.Validate())
	require.Error(t, Commitment{MerkleRoot: Hash{1}, PieceSize: 1}.Validate())
}

func TestHashHexRoundTrip(t *testing.T) {
	t.Parallel()

	var h Hash
	require.True(t, h.IsZero())
	h[0], h[31] = 0xab, 0x01

	parsed, err := HashFromHex(h.String())
	require.NoError(t, err)
	require.Equal(t, h, parsed)

	text, err := h.MarshalText()
	require.NoError(t, err)
	var h2 Hash
	require.NoError(t, h2.UnmarshalText(text))
	require.Equal(t, h, h2)

	_, err = HashFromHex("zz")
	require.Error(t, err)
	_, err = HashFromHex("abcd")
	require.Error(t, err)
}
