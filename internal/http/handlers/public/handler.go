package public

import "github.com/dujiao-next/payin/internal/provider"

// Handler 接入方接口处理器入口
// 说明：该处理器用于换取令牌、付款方侧购物车支付与渠道回调。
type Handler struct {
	*provider.Container
}

// New 创建接入方处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
