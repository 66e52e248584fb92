// Package model содержит доменные сущности сервиса обмена баллов.
package model

import "time"

// Role описывает роль актора в системе.
type Role string

const (
	RoleMember Role = "member"
	RoleAdmin  Role = "admin"
	RoleSystem Role = "system"
)

// User представляет участника программы с бонусным кошельком.
// Заблокированная сумма не хранится в записи пользователя, а выводится
// из живых строк корзины — см. Balance.
type User struct {
	ID           int64
	Login        string
	PasswordHash []byte
	Role         Role
	Earned       int64
	Bonus        int64
	Spent        int64
	CreatedAt    time.Time
}

// Actor описывает инициатора операции: участника, администратора
// или фоновый процесс.
type Actor struct {
	UserID int64
	Role   Role
}

// SystemActor — актор фоновых процессов (например, очистки резервов).
var SystemActor = Actor{UserID: 0, Role: RoleSystem}

// IsAdmin сообщает, имеет ли актор административные права.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

// Balance содержит счётчики кошелька пользователя в баллах.
// Инвариант: Available = Earned + Bonus - Blocked - Spent, Available >= 0.
type Balance struct {
	Earned    int64 `json:"earned"`
	Bonus     int64 `json:"bonus"`
	Spent     int64 `json:"spent"`
	Blocked   int64 `json:"blocked"`
	Available int64 `json:"available"`
}

// CartLineStatus описывает состояние строки корзины.
type CartLineStatus string

const (
	// CartLineActive — строка резервирует баллы и может изменяться.
	CartLineActive CartLineStatus = "active"
	// CartLinePendingPayment — строка закреплена за заказом до его завершения.
	CartLinePendingPayment CartLineStatus = "pending_payment"
)

// CartLine описывает резерв баллов под позицию каталога.
// BlockedAmount всегда равен Quantity * UnitPrice.
type CartLine struct {
	ID            int64
	UserID        int64
	ArticleID     int64
	ArticleName   string
	ArticleSKU    string
	UnitPrice     int64
	Quantity      int32
	BlockedAmount int64
	Status        CartLineStatus
	OrderID       *int64
	LastTouchedAt time.Time
	CreatedAt     time.Time
}

// OrderStatus описывает статус заказа.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// Terminal сообщает, является ли статус заказа конечным.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// CanTransitionTo проверяет допустимость перехода заказа в новый статус.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	switch s {
	case OrderStatusPending:
		return next == OrderStatusProcessing || next == OrderStatusCancelled
	case OrderStatusProcessing:
		return next == OrderStatusCompleted || next == OrderStatusCancelled
	default:
		return false
	}
}

// Order описывает заказ на обмен баллов.
// Total равен сумме Total его позиций.
type Order struct {
	ID           int64
	UserID       int64
	Total        int64
	Status       OrderStatus
	Priority     int32
	ClaimedBy    *int64
	ClaimedAt    *time.Time
	CancelReason string
	Notes        string
	CreatedAt    time.Time
	Items        []OrderItem
}

// OrderItemStatus описывает статус позиции заказа.
type OrderItemStatus string

const (
	OrderItemPending    OrderItemStatus = "pending"
	OrderItemProcessing OrderItemStatus = "processing"
	OrderItemFulfilled  OrderItemStatus = "fulfilled"
	OrderItemCancelled  OrderItemStatus = "cancelled"
)

// Terminal сообщает, является ли статус позиции конечным.
func (s OrderItemStatus) Terminal() bool {
	return s == OrderItemFulfilled || s == OrderItemCancelled
}

// CanTransitionTo проверяет допустимость перехода позиции в новый статус.
func (s OrderItemStatus) CanTransitionTo(next OrderItemStatus) bool {
	switch s {
	case OrderItemPending:
		return next == OrderItemProcessing || next == OrderItemFulfilled || next == OrderItemCancelled
	case OrderItemProcessing:
		return next == OrderItemFulfilled || next == OrderItemCancelled
	default:
		return false
	}
}

// OrderItem описывает позицию заказа со снимком данных каталога.
// Снимок делается при оформлении и не зависит от последующих правок каталога.
type OrderItem struct {
	ID             int64
	OrderID        int64
	ArticleID      int64
	ArticleName    string
	ArticleSKU     string
	UnitPrice      int64
	Quantity       int32
	Total          int64
	Status         OrderItemStatus
	RedemptionCode string
	FulfilledBy    *int64
	FulfilledAt    *time.Time
	Note           string
}
