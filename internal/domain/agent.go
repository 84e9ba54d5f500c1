package domain

// Agent is the signed-in insurance agent as reported by the IPAP backend.
type Agent struct {
	ID          string `json:"id"`
	UserAgentID string `json:"userAgentID"`
	CompanyID   string `json:"companyID"`
	EntityID    string `json:"entityid,omitempty"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
}

// Customer is an agent-managed customer record.
type Customer struct {
	ID              string `json:"id,omitempty"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone"`
	GhanaCardNumber string `json:"ghanaCardNumber,omitempty"`
	CreatedAt       string `json:"createdAt,omitempty"`
}

// CustomerList is one page of customers.
type CustomerList struct {
	Items []Customer `json:"items"`
	Total int        `json:"total"`
	Page  int        `json:"page"`
	Limit int        `json:"limit"`
}

// PaymentVerification is the outcome of a payment verification call.
type PaymentVerification struct {
	Success         bool    `json:"success"`
	Status          string  `json:"status,omitempty"`
	Message         string  `json:"message,omitempty"`
	TransactionID   string  `json:"transactionId,omitempty"`
	Amount          float64 `json:"amount,omitempty"`
	PaidAt          string  `json:"paidAt,omitempty"`
	PaymentID       string  `json:"paymentId,omitempty"`
	ReferenceID     string  `json:"referenceId,omitempty"`
	FinancingID     string  `json:"pfId,omitempty"`
	ProviderMessage string  `json:"providerMessage,omitempty"`
}
