package pretix

import "time"

// VoucherRequest is one entry of a batch_create call.
type VoucherRequest struct {
	Code             string `json:"code"`
	MaxUsages        int    `json:"max_usages"`
	ValidUntil       string `json:"valid_until"`
	BlockQuota       bool   `json:"block_quota"`
	AllowIgnoreQuota bool   `json:"allow_ignore_quota"`
	PriceMode        string `json:"price_mode"`
	Value            string `json:"value"`
	Item             int64  `json:"item"`
	Variation        *int64 `json:"variation"`
	Quota            *int64 `json:"quota"`
	Tag              string `json:"tag"`
	Comment          string `json:"comment"`
	Subevent         *int64 `json:"subevent"`
}

// NewLotteryVoucher builds a single-use, zero-price, quota-blocking voucher
// request for item, tagged "lottery".
func NewLotteryVoucher(code string, item int64, validUntil time.Time) VoucherRequest {
	return VoucherRequest{
		Code:       code,
		MaxUsages:  1,
		ValidUntil: validUntil.UTC().Format(time.RFC3339),
		BlockQuota: true,
		PriceMode:  "none",
		Value:      "0",
		Item:       item,
		Tag:        "lottery",
	}
}

// Voucher is the provider's voucher record.
type Voucher struct {
	ID         int64   `json:"id"`
	Code       string  `json:"code"`
	MaxUsages  int     `json:"max_usages"`
	Redeemed   int     `json:"redeemed"`
	ValidUntil *string `json:"valid_until"`
	Item       *int64  `json:"item"`
	Tag        string  `json:"tag"`
}

// Order is the subset of a provider order the webhook needs.
type Order struct {
	Code      string          `json:"code"`
	Status    string          `json:"status"`
	Secret    string          `json:"secret"`
	Email     string          `json:"email"`
	Positions []OrderPosition `json:"positions"`
}

type OrderPosition struct {
	ID      int64  `json:"id"`
	Item    int64  `json:"item"`
	Voucher *int64 `json:"voucher"`
}
