package models

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {},
	"CLP": {},
	"DJF": {},
	"GNF": {},
	"JPY": {},
	"KMF": {},
	"KRW": {},
	"MGA": {},
	"PYG": {},
	"RWF": {},
	"UGX": {},
	"VND": {},
	"VUV": {},
	"XAF": {},
	"XOF": {},
	"XPF": {},
}

// Money 展示金额（按币种精度输出）
type Money struct {
	decimal.Decimal
	scale int32
}

// CurrencyScale 返回币种的小数位数
func CurrencyScale(currency string) int32 {
	upper := strings.ToUpper(strings.TrimSpace(currency))
	if _, ok := zeroDecimalCurrencies[upper]; ok {
		return 0
	}
	return 2
}

// NewMoneyFromMinor 从最小货币单位创建展示金额
func NewMoneyFromMinor(minor int64, currency string) Money {
	scale := CurrencyScale(currency)
	return Money{Decimal: decimal.NewFromInt(minor).Shift(-scale), scale: scale}
}

// ParseMinorAmount 将十进制金额字符串转换为最小货币单位
func ParseMinorAmount(amount string, currency string) (int64, error) {
	parsed, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return 0, fmt.Errorf("amount is invalid: %w", err)
	}
	if parsed.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("amount must be greater than zero")
	}
	minor := parsed.Shift(CurrencyScale(currency))
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount precision is invalid")
	}
	return minor.IntPart(), nil
}

// MarshalJSON 按币种精度输出字符串
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// String 返回按币种精度格式化的金额
func (m Money) String() string {
	return m.Decimal.StringFixed(m.scale)
}
