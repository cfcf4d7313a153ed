package usecase

import (
	"context"
	"net/http"
	"testing"

	"app/internal/domain/model"
	repo "app/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newCartUsecaseWithMocks() (*CartUsecase, *CartRepoMock, *CartItemRepoMock, *ProductRepoMock) {
	carts := &CartRepoMock{}
	cartItems := &CartItemRepoMock{}
	products := &ProductRepoMock{}
	return NewCartUsecase(carts, cartItems, products), carts, cartItems, products
}

func TestGetCart_NoCartRowIsEmptyCart(t *testing.T) {
	uc, carts, _, _ := newCartUsecaseWithMocks()

	carts.On("FindByUserID", mock.Anything, int64(7)).Return(model.Cart{}, repo.ErrNotFound)

	out, err := uc.GetCart(context.Background(), 7)
	assert.NoError(t, err)
	assert.Empty(t, out.Items)
	assert.Equal(t, int64(0), out.Total)
}

func TestGetCart_TotalsFromCurrentPrices(t *testing.T) {
	uc, carts, cartItems, products := newCartUsecaseWithMocks()

	carts.On("FindByUserID", mock.Anything, int64(7)).Return(model.Cart{ID: 3, UserID: 7}, nil)
	cartItems.On("ListByCartID", mock.Anything, int64(3)).Return([]model.CartItem{
		{ID: 1, CartID: 3, ProductID: "aaaa-1111", Quantity: 2},
		{ID: 2, CartID: 3, ProductID: "bbbb-2222", Quantity: 1},
	}, nil)
	products.On("FindByID", mock.Anything, "aaaa-1111").Return(model.Product{ID: "aaaa-1111", Price: 20}, nil)
	products.On("FindByID", mock.Anything, "bbbb-2222").Return(model.Product{ID: "bbbb-2222", Price: 50}, nil)

	out, err := uc.GetCart(context.Background(), 7)
	assert.NoError(t, err)
	assert.Len(t, out.Items, 2)
	assert.Equal(t, int64(90), out.Total)
}

func TestAddToCart_UnknownProduct(t *testing.T) {
	uc, carts, cartItems, products := newCartUsecaseWithMocks()

	products.On("ResolveRef", mock.Anything, "nope").Return(model.Product{}, false, nil)

	_, err := uc.AddToCart(context.Background(), 7, AddCartInput{ProductRef: "nope", Quantity: 1})
	assertHTTPError(t, err, http.StatusNotFound, "product not found")
	carts.AssertNotCalled(t, "GetOrCreateByUserID", mock.Anything, mock.Anything)
	cartItems.AssertNotCalled(t, "UpsertByCartAndProduct", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAddToCart_ResolvesSeedIDReference(t *testing.T) {
	uc, carts, cartItems, products := newCartUsecaseWithMocks()

	p := model.Product{ID: "aaaa-1111", SeedID: 42, Price: 20, IsActive: true}
	products.On("ResolveRef", mock.Anything, "42").Return(p, true, nil)
	carts.On("GetOrCreateByUserID", mock.Anything, int64(7)).Return(model.Cart{ID: 3, UserID: 7}, nil)
	//保存は正規のUUID参照で行う
	cartItems.On("UpsertByCartAndProduct", mock.Anything, int64(3), "aaaa-1111", int64(2)).Return(nil)
	cartItems.On("ListByCartID", mock.Anything, int64(3)).Return([]model.CartItem{
		{ID: 1, CartID: 3, ProductID: "aaaa-1111", Quantity: 2},
	}, nil)
	products.On("FindByID", mock.Anything, "aaaa-1111").Return(p, nil)

	out, err := uc.AddToCart(context.Background(), 7, AddCartInput{ProductRef: "42", Quantity: 2})
	assert.NoError(t, err)
	assert.Equal(t, int64(40), out.Total)
	cartItems.AssertExpectations(t)
}

func TestUpdateCartItem_ForeignItemIsNotFound(t *testing.T) {
	uc, carts, cartItems, _ := newCartUsecaseWithMocks()

	//明細はカート9のもの、本人のカートは3
	cartItems.On("FindByID", mock.Anything, int64(5)).Return(model.CartItem{ID: 5, CartID: 9}, nil)
	carts.On("FindByUserID", mock.Anything, int64(7)).Return(model.Cart{ID: 3, UserID: 7}, nil)

	_, err := uc.UpdateCartItem(context.Background(), 7, 5, UpdateCartItemInput{Quantity: 2})
	assertHTTPError(t, err, http.StatusNotFound, "cart item not found")
	cartItems.AssertNotCalled(t, "UpdateQuantity", mock.Anything, mock.Anything, mock.Anything)
}

func TestRemoveCartItem_Success(t *testing.T) {
	uc, carts, cartItems, _ := newCartUsecaseWithMocks()

	cartItems.On("FindByID", mock.Anything, int64(5)).Return(model.CartItem{ID: 5, CartID: 3}, nil)
	carts.On("FindByUserID", mock.Anything, int64(7)).Return(model.Cart{ID: 3, UserID: 7}, nil)
	cartItems.On("Delete", mock.Anything, int64(5)).Return(nil)
	cartItems.On("ListByCartID", mock.Anything, int64(3)).Return([]model.CartItem{}, nil)

	out, err := uc.RemoveCartItem(context.Background(), 7, 5)
	assert.NoError(t, err)
	assert.Empty(t, out.Items)
	cartItems.AssertExpectations(t)
}
