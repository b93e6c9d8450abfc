package enums

// BrokerMethod is the dispatch discriminator of the Fragment API.
// The three methods are intentionally separate steps on the broker side:
// init quotes a price before commitment, the buy-link call commits to it.
type BrokerMethod string

const (
	BrokerMethodSearchRecipient BrokerMethod = "searchStarsRecipient"
	BrokerMethodInitBuyRequest  BrokerMethod = "initBuyStarsRequest"
	BrokerMethodGetBuyLink      BrokerMethod = "getBuyStarsLink"
)

func (m BrokerMethod) String() string {
	return string(m)
}
