package service

import "github.com/dujiao-next/payin/internal/models"

// CartPaymentResponse 对外返回的购物车支付与当前支付意图
type CartPaymentResponse struct {
	CartPayment   *models.CartPayment
	PaymentIntent *models.PaymentIntent
}

// populateCartPaymentForResponse 只回填支付方式、账单描述与扣款方式三项
func populateCartPaymentForResponse(cartPayment *models.CartPayment, intent *models.PaymentIntent, pgpIntent *models.PgpPaymentIntent) {
	if cartPayment == nil || intent == nil {
		return
	}
	if pgpIntent != nil {
		cartPayment.PaymentMethodID = pgpIntent.PaymentMethodResourceID
	}
	cartPayment.PayerStatementDescription = intent.StatementDescriptor
	cartPayment.CaptureMethod = intent.CaptureMethod
}

func newCartPaymentResponse(cartPayment *models.CartPayment, intent *models.PaymentIntent, pgpIntent *models.PgpPaymentIntent) *CartPaymentResponse {
	if cartPayment == nil {
		return nil
	}
	out := *cartPayment
	out.Metadata = cartPayment.Metadata.Clone()
	populateCartPaymentForResponse(&out, intent, pgpIntent)
	return &CartPaymentResponse{CartPayment: &out, PaymentIntent: intent}
}
