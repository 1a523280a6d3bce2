package builder

// Code is a named failure of a wallet operation. Wrapped errors keep their code, so callers
// test with errors.Is(err, builder.ErrCredit).
type Code string

func (c Code) Error() string { return string(c) }

// preconditions
const (
	ErrLocked         Code = "LOCKED"
	ErrAccountUnknown Code = "ACCOUNT_UNKNOWN"
	ErrDesync         Code = "DESYNC"
	ErrRestricted     Code = "RESTRICTED"
	ErrAccountType    Code = "ACCOUNT_TYPE"
	ErrNotActivated   Code = "NOT_ACTIVATED"
)

// economics
const (
	ErrBalance          Code = "BALANCE"
	ErrCredit           Code = "CREDIT"
	ErrCreditOverflow   Code = "CREDIT_OVERFLOW"
	ErrReceivableAmount Code = "RECEIVABLE_AMOUNT"
)

// request validation
const (
	ErrReceivableUnknown Code = "RECEIVABLE_UNKNOWN"
	ErrReceiving         Code = "RECEIVING"
	ErrTimestamp         Code = "TIMESTAMP"
	ErrExtensions        Code = "EXTENSIONS"
	ErrAmount            Code = "AMOUNT"
	ErrDestination       Code = "DESTINATION"
	ErrRepresentative    Code = "REPRESENTATIVE"
	ErrSignature         Code = "SIGNATURE"
)
