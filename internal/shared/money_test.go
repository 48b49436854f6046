package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	m, err := ParseMoney("1499.50")
	require.NoError(t, err)
	require.Equal(t, Money(149950), m)
	require.Equal(t, "1499.50", m.String())

	m, err = ParseMoney("50")
	require.NoError(t, err)
	require.Equal(t, Money(5000), m)

	_, err = ParseMoney("12.345")
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = ParseMoney("abc")
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestMoneyMulQty(t *testing.T) {
	price := MustParseMoney("50.00")
	require.Equal(t, MustParseMoney("100.00"), price.MulQty(2))
}

func TestDisplayAmount(t *testing.T) {
	require.Equal(t, "1,250.05", DisplayAmount(Money(125005)))
	require.Equal(t, "0.99", DisplayAmount(Money(99)))
}
