package usecase

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"app/internal/domain/model"
	repo "app/internal/repository"
)

// OrderUsecase は /orders の業務ロジック。
// 注文作成（商品検証→価格スナップショット→注文保存→カートクリア）が中心。
type OrderUsecase struct {
	tx repo.TransactionManager
}

func NewOrderUsecase(tx repo.TransactionManager) *OrderUsecase {
	return &OrderUsecase{tx: tx}
}

// 注文作成の入力明細。Priceはクライアント申告値で、常に無視する。
type OrderItemInput struct {
	ProductRef string
	Quantity   int64
	Price      int64
}

type CreateOrderInput struct {
	Items           []OrderItemInput
	BillingAddress  *model.Address
	ShippingAddress *model.Address
	Pricing         *model.Pricing
	PaymentMethod   string
}

type UpdateOrderStatusInput struct {
	Status string
}

// 明細の出力。Productは展開済み（削除済みならnil）。
type OrderItemOutput struct {
	Product  *model.Product `json:"product"`
	Quantity int64          `json:"quantity"`
	Price    int64          `json:"price"`
}

type OrderOutput struct {
	ID              int64               `json:"id"`
	UserID          int64               `json:"user_id"`
	Status          model.OrderStatus   `json:"status"`
	PaymentMethod   model.PaymentMethod `json:"payment_method"`
	PaymentStatus   model.PaymentStatus `json:"payment_status"`
	BillingAddress  model.Address       `json:"billing_address"`
	ShippingAddress model.Address       `json:"shipping_address"`
	Pricing         model.Pricing       `json:"pricing"`
	Items           []OrderItemOutput   `json:"products"`
	CreatedAt       time.Time           `json:"created_at"`
}

// CreateOrder は注文を作成する。
// 明細の商品参照をカタログで検証し、現在価格をスナップショットして保存、
// 同一トランザクションでユーザーのカートを空にする。
func (u *OrderUsecase) CreateOrder(ctx context.Context, userID int64, in CreateOrderInput) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if len(in.Items) == 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "no products in order")
	}
	if in.BillingAddress == nil || in.ShippingAddress == nil || in.Pricing == nil {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "missing required order information")
	}

	//支払い方法は未指定なら代引き
	method := model.PaymentMethod(in.PaymentMethod)
	if method == "" {
		method = model.PaymentMethodCOD
	}
	payStatus := model.PaymentStatusCompleted
	if method == model.PaymentMethodCOD {
		payStatus = model.PaymentStatusPending
	}

	var out OrderOutput

	//検証→保存→カートクリアまで1トランザクション
	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		orderItems := make([]model.OrderItem, 0, len(in.Items))
		products := make([]*model.Product, 0, len(in.Items))

		for _, item := range in.Items {
			//商品参照を解決（UUID主キー→シード数値ID）
			p, found, err := r.Products().ResolveRef(ctx, item.ProductRef)
			if err != nil {
				return NewHTTPError(http.StatusInternalServerError, "db error")
			}
			if !found {
				return NewHTTPError(http.StatusNotFound, fmt.Sprintf("product %s not found", item.ProductRef))
			}

			qty := item.Quantity
			if qty < 1 {
				qty = 1
			}

			//正規参照＋現在のカタログ価格で明細を作る（申告価格は使わない）
			orderItems = append(orderItems, model.OrderItem{
				ProductID: p.ID,
				Quantity:  qty,
				Price:     p.Price,
			})
			products = append(products, &p)
		}

		now := time.Now()
		order := model.Order{
			UserID:          userID,
			Status:          model.OrderStatusPending,
			PaymentMethod:   method,
			PaymentStatus:   payStatus,
			BillingAddress:  *in.BillingAddress,
			ShippingAddress: *in.ShippingAddress,
			Pricing:         *in.Pricing,
			CreatedAt:       now,
			UpdatedAt:       now,
		}

		orderID, err := r.Orders().Create(ctx, order)
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}
		if err := r.OrderItems().CreateBulk(ctx, orderID, orderItems); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//注文成功後にカートを空にする（カート行が無ければ既に空扱い）
		if err := r.Carts().ReplaceItems(ctx, userID, nil); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		order.ID = orderID
		out = toOrderOutput(order, orderItems, products)
		return nil
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// ListOrders は注文一覧。adminは全件、userは自分の分だけ（新しい順）。
func (u *OrderUsecase) ListOrders(ctx context.Context, userID int64, role model.Role) ([]OrderOutput, error) {
	if userID <= 0 {
		return []OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}

	var outs []OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		var orders []model.Order
		var err error
		if role == model.RoleAdmin {
			orders, err = r.Orders().ListAll(ctx)
		} else {
			orders, err = r.Orders().ListByUserID(ctx, userID)
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		outs = make([]OrderOutput, 0, len(orders))
		for _, o := range orders {
			out, err := u.expandOrder(ctx, r, o)
			if err != nil {
				return err
			}
			outs = append(outs, out)
		}
		return nil
	})

	if err != nil {
		return []OrderOutput{}, err
	}
	return outs, nil
}

// GetOrderByID は注文詳細。常に本人スコープ（adminも自分の注文しか引けない）。
func (u *OrderUsecase) GetOrderByID(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByUserAndID(ctx, userID, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		out, err = u.expandOrder(ctx, r, o)
		return err
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// UpdateStatus はステータス更新（admin専用ルートから呼ぶ）。
func (u *OrderUsecase) UpdateStatus(ctx context.Context, orderID int64, in UpdateOrderStatusInput) (OrderOutput, error) {
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	newStatus := model.OrderStatus(in.Status)
	if !newStatus.Valid() {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid status")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByID(ctx, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		if err := r.Orders().UpdateStatus(ctx, orderID, newStatus); err != nil {
			if err == repo.ErrNotFound {
				return NewHTTPError(http.StatusNotFound, "order not found")
			}
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		o.Status = newStatus
		out, err = u.expandOrder(ctx, r, o)
		return err
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// CancelOrder は本人の注文をキャンセルする。pending/processingのみ可。
func (u *OrderUsecase) CancelOrder(ctx context.Context, userID int64, orderID int64) (OrderOutput, error) {
	if userID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	if orderID <= 0 {
		return OrderOutput{}, NewHTTPError(http.StatusBadRequest, "invalid id")
	}

	var out OrderOutput

	err := u.tx.WithinTx(ctx, func(r repo.TxRepos) error {
		o, err := r.Orders().FindByUserAndID(ctx, userID, orderID)
		if err == repo.ErrNotFound {
			return NewHTTPError(http.StatusNotFound, "order not found")
		}
		if err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		//shipped/delivered/cancelledはキャンセル不可
		if !o.Status.Cancellable() {
			return NewHTTPError(http.StatusBadRequest,
				fmt.Sprintf("cannot cancel order with status: %s", o.Status))
		}

		if err := r.Orders().UpdateStatus(ctx, orderID, model.OrderStatusCancelled); err != nil {
			return NewHTTPError(http.StatusInternalServerError, "db error")
		}

		o.Status = model.OrderStatusCancelled
		out, err = u.expandOrder(ctx, r, o)
		return err
	})

	if err != nil {
		return OrderOutput{}, err
	}
	return out, nil
}

// 明細と商品を読み込んでOrderOutputに展開する
func (u *OrderUsecase) expandOrder(ctx context.Context, r repo.TxRepos, o model.Order) (OrderOutput, error) {
	items, err := r.OrderItems().ListByOrderID(ctx, o.ID)
	if err != nil {
		return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
	}

	products := make([]*model.Product, 0, len(items))
	for _, it := range items {
		p, err := r.Products().FindByID(ctx, it.ProductID)
		if err == repo.ErrNotFound {
			//削除済み商品はnullで返す（注文明細自体は残す）
			products = append(products, nil)
			continue
		}
		if err != nil {
			return OrderOutput{}, NewHTTPError(http.StatusInternalServerError, "db error")
		}
		products = append(products, &p)
	}

	return toOrderOutput(o, items, products), nil
}

func toOrderOutput(o model.Order, items []model.OrderItem, products []*model.Product) OrderOutput {
	outItems := make([]OrderItemOutput, 0, len(items))
	for i, it := range items {
		var p *model.Product
		if i < len(products) {
			p = products[i]
		}
		outItems = append(outItems, OrderItemOutput{
			Product:  p,
			Quantity: it.Quantity,
			Price:    it.Price,
		})
	}

	return OrderOutput{
		ID:              o.ID,
		UserID:          o.UserID,
		Status:          o.Status,
		PaymentMethod:   o.PaymentMethod,
		PaymentStatus:   o.PaymentStatus,
		BillingAddress:  o.BillingAddress,
		ShippingAddress: o.ShippingAddress,
		Pricing:         o.Pricing,
		Items:           outItems,
		CreatedAt:       o.CreatedAt,
	}
}
