package core

import "time"

// Transaction is a single monetary record owned by one user. The type is a
// free-form label (income, expense, ...), not a closed enum.
type Transaction struct {
	Meta
	UserID      string
	Amount      float64
	Type        string
	Category    string
	Description string
}

// NewTransaction creates a fresh transaction with a generated id and both
// timestamps set to now.
func NewTransaction(now time.Time, userID string, amount float64, txnType, category, description string) *Transaction {
	return &Transaction{
		Meta:        NewMeta(now),
		UserID:      userID,
		Amount:      amount,
		Type:        txnType,
		Category:    category,
		Description: description,
	}
}

// TransactionFromDocument rehydrates a transaction from a stored document,
// a view, or an aggregation projection. Missing fields keep zero values.
func TransactionFromDocument(doc map[string]any) (*Transaction, error) {
	meta, err := metaFromDocument(doc)
	if err != nil {
		return nil, err
	}
	return &Transaction{
		Meta:        meta,
		UserID:      stringField(doc, "user_id"),
		Amount:      floatField(doc, "amount"),
		Type:        stringField(doc, "type"),
		Category:    stringField(doc, "category"),
		Description: stringField(doc, "description"),
	}, nil
}

func (t *Transaction) EntityKind() Kind { return KindTransaction }

func (t *Transaction) View() map[string]any {
	v := t.view()
	v["user_id"] = t.UserID
	v["amount"] = t.Amount
	v["type"] = t.Type
	v["category"] = t.Category
	v["description"] = t.Description
	v[FieldKind] = string(KindTransaction)
	return v
}
