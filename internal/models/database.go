package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents an account holder. Balance and TotalEarnings are owned by
// the account ledger and never written outside it.
type User struct {
	Id             string          `db:"id" json:"id"`
	Name           string          `db:"name" json:"name"`
	Email          string          `db:"email" json:"email"`
	ReferralCode   string          `db:"referral_code" json:"referral_code"`
	Balance        decimal.Decimal `db:"balance" json:"balance"`
	TotalEarnings  decimal.Decimal `db:"total_earnings" json:"total_earnings"`
	TotalReferrals int64           `db:"total_referrals" json:"total_referrals"`
	Active         bool            `db:"active" json:"active"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updated_at"`
}

// Offer is a cask investment offer. Only the fields purchase validation and
// snapshotting need; catalog browsing lives elsewhere.
type Offer struct {
	Id            string          `db:"id" json:"id"`
	Title         string          `db:"title" json:"title"`
	ImageUrl      string          `db:"image_url" json:"image_url"`
	Location      string          `db:"location" json:"location"`
	Rating        decimal.Decimal `db:"rating" json:"rating"`
	PricePerShare decimal.Decimal `db:"price_per_share" json:"price_per_share"`
	AnnualReturn  decimal.Decimal `db:"annual_return" json:"annual_return"`
	Active        bool            `db:"active" json:"active"`
	ExpiresAt     time.Time       `db:"expires_at" json:"expires_at"`
	InterestCount int64           `db:"interest_count" json:"interest_count"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// OfferSeed is an offer definition loaded from offers.yaml at startup.
type OfferSeed struct {
	Id            string `yaml:"id"`
	Title         string `yaml:"title"`
	ImageUrl      string `yaml:"image_url"`
	Location      string `yaml:"location"`
	Rating        string `yaml:"rating"`
	PricePerShare string `yaml:"price_per_share"`
	AnnualReturn  string `yaml:"annual_return"`
	ExpiresAt     string `yaml:"expires_at"`
}

// Purchase is a user's expression of interest in an offer. The offer display
// fields are a snapshot taken at creation time so later offer edits do not
// rewrite historical records.
type Purchase struct {
	Id               string          `db:"id" json:"id"`
	UserId           string          `db:"user_id" json:"user_id"`
	OfferId          string          `db:"offer_id" json:"offer_id"`
	InvestmentAmount decimal.Decimal `db:"investment_amount" json:"investment_amount"`
	Status           PurchaseStatus  `db:"status" json:"status"`
	ContactMethod    string          `db:"contact_method" json:"contact_method"`
	OfferTitle       string          `db:"offer_title" json:"offer_title"`
	OfferImageUrl    string          `db:"offer_image_url" json:"offer_image_url"`
	OfferLocation    string          `db:"offer_location" json:"offer_location"`
	OfferRating      decimal.Decimal `db:"offer_rating" json:"offer_rating"`
	Note             string          `db:"note" json:"note"`
	SubmittedDate    time.Time       `db:"submitted_date" json:"submitted_date"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// PurchaseStatusChange is one entry of a purchase's append-only status history.
type PurchaseStatusChange struct {
	Id         int64          `db:"id" json:"id"`
	PurchaseId string         `db:"purchase_id" json:"purchase_id"`
	Status     PurchaseStatus `db:"status" json:"status"`
	Actor      string         `db:"actor" json:"actor"`
	Reason     string         `db:"reason" json:"reason"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
}

// Referral links a referrer to a referee. It completes at most once, on the
// referee's first completed purchase.
type Referral struct {
	Id                  string          `db:"id" json:"id"`
	ReferrerUserId      string          `db:"referrer_user_id" json:"referrer_user_id"`
	RefereeUserId       string          `db:"referee_user_id" json:"referee_user_id"`
	ReferralCode        string          `db:"referral_code" json:"referral_code"`
	Status              ReferralStatus  `db:"status" json:"status"`
	RewardAmount        decimal.Decimal `db:"reward_amount" json:"reward_amount"`
	RewardPaid          bool            `db:"reward_paid" json:"reward_paid"`
	RewardPaidDate      *time.Time      `db:"reward_paid_date" json:"reward_paid_date"`
	FirstPurchaseDate   *time.Time      `db:"first_purchase_date" json:"first_purchase_date"`
	FirstPurchaseAmount decimal.Decimal `db:"first_purchase_amount" json:"first_purchase_amount"`
	CreatedAt           time.Time       `db:"created_at" json:"created_at"`
}

// Payment is an inbound charge attempt tied to a purchase.
type Payment struct {
	Id               string          `db:"id" json:"id"`
	PurchaseId       string          `db:"purchase_id" json:"purchase_id"`
	UserId           string          `db:"user_id" json:"user_id"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	Status           PaymentStatus   `db:"status" json:"status"`
	GatewayReference string          `db:"gateway_reference" json:"gateway_reference"`
	RefundAmount     decimal.Decimal `db:"refund_amount" json:"refund_amount"`
	FailureReason    string          `db:"failure_reason" json:"failure_reason"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// Payout is an outbound transfer request. The balance debit happens at
// request time; the gateway callback settles the final state.
type Payout struct {
	Id               string          `db:"id" json:"id"`
	UserId           string          `db:"user_id" json:"user_id"`
	PayoutMethodId   string          `db:"payout_method_id" json:"payout_method_id"`
	Amount           decimal.Decimal `db:"amount" json:"amount"`
	Status           PayoutStatus    `db:"status" json:"status"`
	GatewayReference string          `db:"gateway_reference" json:"gateway_reference"`
	ArrivalDate      *time.Time      `db:"arrival_date" json:"arrival_date"`
	FailureReason    string          `db:"failure_reason" json:"failure_reason"`
	CreatedAt        time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time       `db:"updated_at" json:"updated_at"`
}

// PayoutMethod is a stored destination (bank account or card) a payout can
// be sent to. The gateway token is opaque to us.
type PayoutMethod struct {
	Id           string    `db:"id" json:"id"`
	UserId       string    `db:"user_id" json:"user_id"`
	MethodType   string    `db:"method_type" json:"method_type"`
	Label        string    `db:"label" json:"label"`
	GatewayToken string    `db:"gateway_token" json:"-"`
	Active       bool      `db:"active" json:"active"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// LedgerEntry is one immutable row of the balance audit trail.
type LedgerEntry struct {
	Id            string          `db:"id" json:"id"`
	UserId        string          `db:"user_id" json:"user_id"`
	EntryType     EntryType       `db:"entry_type" json:"entry_type"`
	Reason        LedgerReason    `db:"reason" json:"reason"`
	Amount        decimal.Decimal `db:"amount" json:"amount"`
	BalanceBefore decimal.Decimal `db:"balance_before" json:"balance_before"`
	BalanceAfter  decimal.Decimal `db:"balance_after" json:"balance_after"`
	Reference     string          `db:"reference" json:"reference"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

// CompensationFailure is an escalation record for a compensating credit that
// could not be applied after retries. These require manual intervention.
type CompensationFailure struct {
	Id        string          `db:"id" json:"id"`
	PayoutId  string          `db:"payout_id" json:"payout_id"`
	UserId    string          `db:"user_id" json:"user_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	LastError string          `db:"last_error" json:"last_error"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
