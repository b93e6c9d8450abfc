package enums

type PurchaseStatus string

const (
	PurchaseStatusPending PurchaseStatus = "pending"
	PurchaseStatusSuccess PurchaseStatus = "success"
	PurchaseStatusFailed  PurchaseStatus = "failed"
)

func (s PurchaseStatus) Terminal() bool {
	return s == PurchaseStatusSuccess || s == PurchaseStatusFailed
}
