package repository

import (
	"context"

	"app/internal/domain/model"
)

type CartRepository interface {
	// ユーザーのカートを取得し、無ければ作成
	GetOrCreateByUserID(ctx context.Context, userID int64) (model.Cart, error)
	// ユーザーのカートを取得（無ければErrNotFound）
	FindByUserID(ctx context.Context, userID int64) (model.Cart, error)

	// ReplaceItems はユーザーのカート明細を丸ごと差し替える。
	// 空スライスでクリア。カート行が無いユーザーは既に空とみなしエラーにしない。
	ReplaceItems(ctx context.Context, userID int64, items []model.CartItem) error
}

type CartItemRepository interface {
	ListByCartID(ctx context.Context, cartID int64) ([]model.CartItem, error)
	FindByID(ctx context.Context, itemID int64) (model.CartItem, error)
	// 同一商品は数量加算
	UpsertByCartAndProduct(ctx context.Context, cartID int64, productID string, addQty int64) error
	UpdateQuantity(ctx context.Context, itemID int64, qty int64) error
	Delete(ctx context.Context, itemID int64) error
}
