package handler_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"app/internal/config"
	"app/internal/domain/model"
	"app/internal/handler"
	repo "app/internal/repository"
	"app/internal/usecase"

	"github.com/golang-jwt/jwt/v4"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

// =====================
// in-memory fakes（DBなしでhandler〜usecaseを通す）
// =====================

type fakeTxManager struct {
	repos repo.TxRepos
}

func (f *fakeTxManager) WithinTx(ctx context.Context, fn func(r repo.TxRepos) error) error {
	return fn(f.repos)
}

type fakeRepos struct {
	orders     *fakeOrderRepo
	orderItems *fakeOrderItemRepo
	carts      *fakeCartRepo
	products   *fakeProductRepo
}

func (f *fakeRepos) Orders() repo.OrderRepository         { return f.orders }
func (f *fakeRepos) OrderItems() repo.OrderItemRepository { return f.orderItems }
func (f *fakeRepos) Carts() repo.CartRepository           { return f.carts }
func (f *fakeRepos) CartItems() repo.CartItemRepository   { return nil }
func (f *fakeRepos) Products() repo.ProductRepository     { return f.products }

type fakeProductRepo struct {
	byID map[string]model.Product
}

func (f *fakeProductRepo) ListPublic(ctx context.Context, q repo.ProductListQuery) ([]model.Product, int64, error) {
	items := make([]model.Product, 0, len(f.byID))
	for _, p := range f.byID {
		items = append(items, p)
	}
	return items, int64(len(items)), nil
}

func (f *fakeProductRepo) FindByID(ctx context.Context, id string) (model.Product, error) {
	p, ok := f.byID[id]
	if !ok {
		return model.Product{}, repo.ErrNotFound
	}
	return p, nil
}

func (f *fakeProductRepo) FindBySeedID(ctx context.Context, seedID int64) (model.Product, error) {
	for _, p := range f.byID {
		if p.SeedID == seedID {
			return p, nil
		}
	}
	return model.Product{}, repo.ErrNotFound
}

func (f *fakeProductRepo) ResolveRef(ctx context.Context, ref string) (model.Product, bool, error) {
	if p, ok := f.byID[ref]; ok {
		return p, true, nil
	}
	seedID, err := strconv.ParseInt(ref, 10, 64)
	if err != nil {
		return model.Product{}, false, nil
	}
	p, err := f.FindBySeedID(ctx, seedID)
	if err != nil {
		return model.Product{}, false, nil
	}
	return p, true, nil
}

func (f *fakeProductRepo) Create(ctx context.Context, p model.Product) (model.Product, error) {
	f.byID[p.ID] = p
	return p, nil
}

func (f *fakeProductRepo) Update(ctx context.Context, p model.Product) error {
	f.byID[p.ID] = p
	return nil
}

func (f *fakeProductRepo) SoftDelete(ctx context.Context, id string) error {
	delete(f.byID, id)
	return nil
}

type fakeOrderRepo struct {
	nextID int64
	byID   map[int64]model.Order
}

func (f *fakeOrderRepo) FindByID(ctx context.Context, orderID int64) (model.Order, error) {
	o, ok := f.byID[orderID]
	if !ok {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrderRepo) FindByUserAndID(ctx context.Context, userID int64, orderID int64) (model.Order, error) {
	o, ok := f.byID[orderID]
	if !ok || o.UserID != userID {
		return model.Order{}, repo.ErrNotFound
	}
	return o, nil
}

func (f *fakeOrderRepo) ListByUserID(ctx context.Context, userID int64) ([]model.Order, error) {
	var out []model.Order
	for _, o := range f.byID {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrderRepo) ListAll(ctx context.Context) ([]model.Order, error) {
	var out []model.Order
	for _, o := range f.byID {
		out = append(out, o)
	}
	return out, nil
}

func (f *fakeOrderRepo) Create(ctx context.Context, order model.Order) (int64, error) {
	f.nextID++
	order.ID = f.nextID
	f.byID[order.ID] = order
	return order.ID, nil
}

func (f *fakeOrderRepo) UpdateStatus(ctx context.Context, orderID int64, status model.OrderStatus) error {
	o, ok := f.byID[orderID]
	if !ok {
		return repo.ErrNotFound
	}
	o.Status = status
	f.byID[orderID] = o
	return nil
}

type fakeOrderItemRepo struct {
	byOrder map[int64][]model.OrderItem
}

func (f *fakeOrderItemRepo) CreateBulk(ctx context.Context, orderID int64, items []model.OrderItem) error {
	for i := range items {
		items[i].OrderID = orderID
	}
	f.byOrder[orderID] = items
	return nil
}

func (f *fakeOrderItemRepo) ListByOrderID(ctx context.Context, orderID int64) ([]model.OrderItem, error) {
	return f.byOrder[orderID], nil
}

type fakeCartRepo struct {
	itemsByUser map[int64][]model.CartItem
}

func (f *fakeCartRepo) GetOrCreateByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	return model.Cart{ID: userID, UserID: userID}, nil
}

func (f *fakeCartRepo) FindByUserID(ctx context.Context, userID int64) (model.Cart, error) {
	if _, ok := f.itemsByUser[userID]; !ok {
		return model.Cart{}, repo.ErrNotFound
	}
	return model.Cart{ID: userID, UserID: userID}, nil
}

func (f *fakeCartRepo) ReplaceItems(ctx context.Context, userID int64, items []model.CartItem) error {
	f.itemsByUser[userID] = items
	return nil
}

// =====================
// setup
// =====================

const testSecret = "order-handler-test-secret"

func newOrderTestServer(t *testing.T) (*echo.Echo, *fakeRepos) {
	t.Helper()

	repos := &fakeRepos{
		orders:     &fakeOrderRepo{byID: map[int64]model.Order{}},
		orderItems: &fakeOrderItemRepo{byOrder: map[int64][]model.OrderItem{}},
		carts:      &fakeCartRepo{itemsByUser: map[int64][]model.CartItem{}},
		products:   &fakeProductRepo{byID: map[string]model.Product{}},
	}

	uc := usecase.NewOrderUsecase(&fakeTxManager{repos: repos})
	h := handler.NewOrderHandler(uc)

	e := echo.New()
	h.RegisterRoutes(e, config.Config{JWTSecret: testSecret})
	return e, repos
}

func makeToken(t *testing.T, userID int64, role string) string {
	t.Helper()

	claims := jwt.MapClaims{
		"id":    userID,
		"email": "user@example.com",
		"role":  role,
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	return signed
}

func doJSON(e *echo.Echo, method, path, token, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

type orderEnvelope struct {
	Message string              `json:"message"`
	Order   usecase.OrderOutput `json:"order"`
}

type errorEnvelope struct {
	Error string `json:"error"`
}

// =====================
// tests
// =====================

func TestCreateOrderEndpoint_Success(t *testing.T) {
	e, repos := newOrderTestServer(t)
	repos.products.byID["p-1"] = model.Product{ID: "p-1", SeedID: 1, Name: "Mug", Price: 20, IsActive: true}
	repos.carts.itemsByUser[7] = []model.CartItem{{ID: 1, CartID: 7, ProductID: "p-1", Quantity: 2}}

	body := `{
		"products": [{"product": "p-1", "quantity": 2, "price": 999}],
		"billingAddress": {"name": "Taro", "city": "Tokyo"},
		"shippingAddress": {"name": "Taro", "city": "Tokyo"},
		"pricing": {"subtotal": 40, "total": 40}
	}`

	rec := doJSON(e, http.MethodPost, "/orders", makeToken(t, 7, "user"), body)
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp orderEnvelope
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Order created successfully", resp.Message)
	assert.Equal(t, model.OrderStatusPending, resp.Order.Status)
	assert.Equal(t, model.PaymentStatusPending, resp.Order.PaymentStatus)
	if assert.Len(t, resp.Order.Items, 1) {
		//申告価格999ではなくカタログ価格20
		assert.Equal(t, int64(20), resp.Order.Items[0].Price)
	}

	//注文成功でカートは空になる
	assert.Empty(t, repos.carts.itemsByUser[7])
}

func TestCreateOrderEndpoint_UnknownProduct(t *testing.T) {
	e, repos := newOrderTestServer(t)
	repos.carts.itemsByUser[7] = []model.CartItem{{ID: 1, CartID: 7, ProductID: "p-1", Quantity: 1}}

	body := `{
		"products": [{"product": "ghost", "quantity": 1}],
		"billingAddress": {},
		"shippingAddress": {},
		"pricing": {}
	}`

	rec := doJSON(e, http.MethodPost, "/orders", makeToken(t, 7, "user"), body)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp errorEnvelope
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "product ghost not found", resp.Error)

	//失敗したらカートはそのまま
	assert.Len(t, repos.carts.itemsByUser[7], 1)
	assert.Empty(t, repos.orders.byID)
}

func TestCreateOrderEndpoint_EmptyProducts(t *testing.T) {
	e, _ := newOrderTestServer(t)

	body := `{"products": [], "billingAddress": {}, "shippingAddress": {}, "pricing": {}}`
	rec := doJSON(e, http.MethodPost, "/orders", makeToken(t, 7, "user"), body)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorEnvelope
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "no products in order", resp.Error)
}

func TestCreateOrderEndpoint_RequiresAuth(t *testing.T) {
	e, _ := newOrderTestServer(t)

	rec := doJSON(e, http.MethodPost, "/orders", "", `{"products":[]}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateStatusEndpoint_AdminOnly(t *testing.T) {
	e, repos := newOrderTestServer(t)
	repos.orders.byID[1] = model.Order{ID: 1, UserID: 7, Status: model.OrderStatusPending}
	repos.orders.nextID = 1

	//userは403
	rec := doJSON(e, http.MethodPut, "/orders/1/status", makeToken(t, 7, "user"), `{"status":"shipped"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	//adminは更新できる
	rec = doJSON(e, http.MethodPut, "/orders/1/status", makeToken(t, 1, "admin"), `{"status":"shipped"}`)
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp orderEnvelope
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Order status updated", resp.Message)
	assert.Equal(t, model.OrderStatusShipped, resp.Order.Status)
}

func TestUpdateStatusEndpoint_InvalidStatus(t *testing.T) {
	e, repos := newOrderTestServer(t)
	repos.orders.byID[1] = model.Order{ID: 1, UserID: 7, Status: model.OrderStatusPending}

	rec := doJSON(e, http.MethodPut, "/orders/1/status", makeToken(t, 1, "admin"), `{"status":"refunded"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	//ステータスは変わらない
	assert.Equal(t, model.OrderStatusPending, repos.orders.byID[1].Status)
}

func TestCancelEndpoint_ShippedOrderConflicts(t *testing.T) {
	e, repos := newOrderTestServer(t)
	repos.orders.byID[1] = model.Order{ID: 1, UserID: 7, Status: model.OrderStatusShipped}

	rec := doJSON(e, http.MethodDelete, "/orders/1", makeToken(t, 7, "user"), "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp errorEnvelope
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "cannot cancel order with status: shipped", resp.Error)
}

func TestCancelEndpoint_PendingOrderSucceeds(t *testing.T) {
	e, repos := newOrderTestServer(t)
	repos.orders.byID[1] = model.Order{ID: 1, UserID: 7, Status: model.OrderStatusPending}

	rec := doJSON(e, http.MethodDelete, "/orders/1", makeToken(t, 7, "user"), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, model.OrderStatusCancelled, repos.orders.byID[1].Status)
}

func TestGetOrderEndpoint_SelfScopedEvenForAdmin(t *testing.T) {
	e, repos := newOrderTestServer(t)
	repos.orders.byID[1] = model.Order{ID: 1, UserID: 7, Status: model.OrderStatusPending}

	//adminでも他人の注文詳細は404
	rec := doJSON(e, http.MethodGet, "/orders/1", makeToken(t, 1, "admin"), "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	//本人は見える
	rec = doJSON(e, http.MethodGet, "/orders/1", makeToken(t, 7, "user"), "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListOrdersEndpoint_RoleAware(t *testing.T) {
	e, repos := newOrderTestServer(t)
	repos.orders.byID[1] = model.Order{ID: 1, UserID: 7}
	repos.orders.byID[2] = model.Order{ID: 2, UserID: 8}

	type listResp struct {
		Orders []usecase.OrderOutput `json:"orders"`
	}

	//userは自分の分だけ
	rec := doJSON(e, http.MethodGet, "/orders", makeToken(t, 7, "user"), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var mine listResp
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mine))
	assert.Len(t, mine.Orders, 1)

	//adminは全件
	rec = doJSON(e, http.MethodGet, "/orders", makeToken(t, 1, "admin"), "")
	assert.Equal(t, http.StatusOK, rec.Code)
	var all listResp
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all.Orders, 2)
}
