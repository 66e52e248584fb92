package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mmeshcher/pointshop-system/internal/catalog"
	"github.com/mmeshcher/pointshop-system/internal/model"
	"github.com/mmeshcher/pointshop-system/internal/repository"
)

func TestHashPasswordDeterministic(t *testing.T) {
	a := hashPassword("user", "pass")
	b := hashPassword("user", "pass")
	c := hashPassword("user", "other")

	if string(a) != string(b) {
		t.Fatalf("hashPassword must be deterministic, got %x and %x", a, b)
	}
	if string(a) == string(c) {
		t.Fatalf("different passwords must produce different hashes")
	}
}

type stubRepo struct {
	user    *model.User
	userErr error

	balance    *model.Balance
	balanceErr error

	addedLine  *model.CartLine
	addLineErr error

	cartLines  []model.CartLine
	staleLines []model.CartLine

	removedLineIDs []int64
	removeErr      error

	createdOrder *model.Order
	createErr    error

	order    *model.Order
	orderErr error

	claimedOrder *model.Order
	claimErr     error

	fulfilledItem  *model.OrderItem
	fulfillDone    bool
	fulfillErr     error
	fulfillCalls   int
	cancelledOrder *model.Order
	cancelErr      error

	grantedEarned int64
	grantedBonus  int64
}

func (s *stubRepo) Close() error { return nil }

func (s *stubRepo) CreateUser(ctx context.Context, login string, passwordHash []byte) (int64, error) {
	return 1, nil
}

func (s *stubRepo) GetUserByLogin(ctx context.Context, login string) (*model.User, error) {
	return s.user, s.userErr
}

func (s *stubRepo) GetBalance(ctx context.Context, userID int64) (*model.Balance, error) {
	return s.balance, s.balanceErr
}

func (s *stubRepo) AddPoints(ctx context.Context, userID, earned, bonus int64) error {
	s.grantedEarned += earned
	s.grantedBonus += bonus
	return nil
}

func (s *stubRepo) AddCartLine(ctx context.Context, userID int64, art repository.ArticleSnapshot, qty int32, limits repository.CartLimits) (*model.CartLine, error) {
	return s.addedLine, s.addLineErr
}

func (s *stubRepo) UpdateCartLineQuantity(ctx context.Context, userID, lineID int64, newQty int32, limits repository.CartLimits) (*model.CartLine, error) {
	return s.addedLine, s.addLineErr
}

func (s *stubRepo) RemoveCartLine(ctx context.Context, userID, lineID int64) error {
	if s.removeErr != nil {
		return s.removeErr
	}
	s.removedLineIDs = append(s.removedLineIDs, lineID)
	return nil
}

func (s *stubRepo) ClearCart(ctx context.Context, userID int64) (int, error) {
	return len(s.cartLines), nil
}

func (s *stubRepo) GetCartLines(ctx context.Context, userID int64) ([]model.CartLine, error) {
	return s.cartLines, nil
}

func (s *stubRepo) GetStaleCartLines(ctx context.Context, olderThan time.Time, limit int) ([]model.CartLine, error) {
	return s.staleLines, nil
}

func (s *stubRepo) CreateOrderFromCart(ctx context.Context, userID int64) (*model.Order, error) {
	return s.createdOrder, s.createErr
}

func (s *stubRepo) GetOrderByID(ctx context.Context, orderID int64) (*model.Order, error) {
	return s.order, s.orderErr
}

func (s *stubRepo) GetOrdersByUser(ctx context.Context, userID int64) ([]model.Order, error) {
	return nil, nil
}

func (s *stubRepo) ListOrders(ctx context.Context, status model.OrderStatus, limit int) ([]model.Order, error) {
	return nil, nil
}

func (s *stubRepo) ClaimOrder(ctx context.Context, orderID, actorID int64) (*model.Order, error) {
	return s.claimedOrder, s.claimErr
}

func (s *stubRepo) FulfillOrderItem(ctx context.Context, orderID, itemID, actorID int64, code, note string) (*model.OrderItem, bool, error) {
	s.fulfillCalls++
	return s.fulfilledItem, s.fulfillDone, s.fulfillErr
}

func (s *stubRepo) CancelOrder(ctx context.Context, orderID, actorID int64, reason string) (*model.Order, error) {
	return s.cancelledOrder, s.cancelErr
}

func (s *stubRepo) AppendOrderNote(ctx context.Context, orderID int64, note string) error {
	return nil
}

type stubCatalog struct {
	article    *catalog.Article
	articleErr error
	visible    bool
	visibleErr error
}

func (s *stubCatalog) GetArticle(ctx context.Context, articleID int64) (*catalog.Article, error) {
	return s.article, s.articleErr
}

func (s *stubCatalog) IsVisible(ctx context.Context, articleID, userID int64) (bool, error) {
	return s.visible, s.visibleErr
}

type stubNotifier struct {
	newOrders int
	cancelled int
	err       error
}

func (s *stubNotifier) NotifyNewOrder(ctx context.Context, order *model.Order) error {
	s.newOrders++
	return s.err
}

func (s *stubNotifier) NotifyOrderCancelled(ctx context.Context, order *model.Order, reason string) error {
	s.cancelled++
	return s.err
}

func newTestService(repo Repository, cat Catalog, notif Notifier) *Service {
	return NewService(repo, cat, notif, nil, Limits{MaxDistinctItems: 3, MaxItemQuantity: 5}, 30*time.Minute)
}

var member = model.Actor{UserID: 7, Role: model.RoleMember}
var admin = model.Actor{UserID: 100, Role: model.RoleAdmin}

func TestAuthenticateUser_InvalidCredentials(t *testing.T) {
	hashed := hashPassword("user", "correct")
	repo := &stubRepo{
		user: &model.User{
			ID:           1,
			Login:        "user",
			PasswordHash: hashed,
			Role:         model.RoleMember,
		},
	}

	svc := newTestService(repo, nil, nil)

	_, err := svc.AuthenticateUser(context.Background(), "user", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestAuthenticateUser_ReturnsActorWithRole(t *testing.T) {
	hashed := hashPassword("boss", "secret")
	repo := &stubRepo{
		user: &model.User{ID: 5, Login: "boss", PasswordHash: hashed, Role: model.RoleAdmin},
	}

	svc := newTestService(repo, nil, nil)

	actor, err := svc.AuthenticateUser(context.Background(), "boss", "secret")
	if err != nil {
		t.Fatalf("AuthenticateUser error: %v", err)
	}
	if actor.UserID != 5 || actor.Role != model.RoleAdmin {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func availableArticle() *catalog.Article {
	return &catalog.Article{
		ID:        11,
		Name:      "Gift Card",
		SKU:       "GC-100",
		Price:     300,
		Available: true,
		Digital:   true,
		Stock:     0,
	}
}

func TestAddItem_QuantityValidation(t *testing.T) {
	svc := newTestService(&stubRepo{}, &stubCatalog{}, nil)

	if _, err := svc.AddItem(context.Background(), member, 11, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for zero quantity, got %v", err)
	}
	if _, err := svc.AddItem(context.Background(), member, 11, 6); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for quantity over limit, got %v", err)
	}
}

func TestAddItem_UnavailableArticle(t *testing.T) {
	art := availableArticle()
	art.Available = false

	svc := newTestService(&stubRepo{}, &stubCatalog{article: art, visible: true}, nil)

	_, err := svc.AddItem(context.Background(), member, art.ID, 1)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestAddItem_InvisibleArticleForbidden(t *testing.T) {
	svc := newTestService(&stubRepo{}, &stubCatalog{article: availableArticle(), visible: false}, nil)

	_, err := svc.AddItem(context.Background(), member, 11, 1)
	if !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestAddItem_PhysicalStockChecked(t *testing.T) {
	art := availableArticle()
	art.Digital = false
	art.Stock = 1

	svc := newTestService(&stubRepo{}, &stubCatalog{article: art, visible: true}, nil)

	_, err := svc.AddItem(context.Background(), member, art.ID, 2)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for stock shortage, got %v", err)
	}
}

func TestAddItem_DigitalIgnoresStock(t *testing.T) {
	line := &model.CartLine{ID: 1, UserID: member.UserID, ArticleID: 11, Quantity: 2, UnitPrice: 300, BlockedAmount: 600}
	repo := &stubRepo{addedLine: line}

	svc := newTestService(repo, &stubCatalog{article: availableArticle(), visible: true}, nil)

	got, err := svc.AddItem(context.Background(), member, 11, 2)
	if err != nil {
		t.Fatalf("AddItem error: %v", err)
	}
	if got.BlockedAmount != 600 {
		t.Fatalf("BlockedAmount = %d, want 600", got.BlockedAmount)
	}
}

func TestAddItem_PropagatesInsufficientFunds(t *testing.T) {
	repo := &stubRepo{addLineErr: repository.ErrInsufficientFunds}

	svc := newTestService(repo, &stubCatalog{article: availableArticle(), visible: true}, nil)

	_, err := svc.AddItem(context.Background(), member, 11, 1)
	if !errors.Is(err, repository.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestUpdateQuantity_NegativeRejected(t *testing.T) {
	svc := newTestService(&stubRepo{}, nil, nil)

	_, err := svc.UpdateQuantity(context.Background(), member, 1, -1)
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCheckout_NotifierFailureDoesNotFail(t *testing.T) {
	order := &model.Order{ID: 1, UserID: member.UserID, Total: 900, Status: model.OrderStatusPending}
	repo := &stubRepo{createdOrder: order}
	notif := &stubNotifier{err: errors.New("notifier down")}

	svc := newTestService(repo, nil, notif)

	got, err := svc.Checkout(context.Background(), member)
	if err != nil {
		t.Fatalf("Checkout error: %v", err)
	}
	if got.ID != order.ID {
		t.Fatalf("unexpected order: %+v", got)
	}
	if notif.newOrders != 1 {
		t.Fatalf("notifier called %d times, want 1", notif.newOrders)
	}
}

func TestCheckout_EmptyCartPropagated(t *testing.T) {
	repo := &stubRepo{createErr: repository.ErrEmptyCart}
	notif := &stubNotifier{}

	svc := newTestService(repo, nil, notif)

	_, err := svc.Checkout(context.Background(), member)
	if !errors.Is(err, repository.ErrEmptyCart) {
		t.Fatalf("expected ErrEmptyCart, got %v", err)
	}
	if notif.newOrders != 0 {
		t.Fatalf("notifier must not be called on failed checkout")
	}
}

func TestGetOrder_ForeignOrderForbidden(t *testing.T) {
	repo := &stubRepo{order: &model.Order{ID: 1, UserID: 999}}

	svc := newTestService(repo, nil, nil)

	if _, err := svc.GetOrder(context.Background(), member, 1); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}

	if _, err := svc.GetOrder(context.Background(), admin, 1); err != nil {
		t.Fatalf("admin must see any order, got %v", err)
	}
}

func TestClaimOrder_RequiresAdmin(t *testing.T) {
	svc := newTestService(&stubRepo{}, nil, nil)

	if _, err := svc.ClaimOrder(context.Background(), member, 1); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestFulfillItem_EmptyCodeRejected(t *testing.T) {
	svc := newTestService(&stubRepo{}, nil, nil)

	_, _, err := svc.FulfillItem(context.Background(), admin, 1, 1, "   ", "")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCancelOrder_OwnerAllowedAdminAllowed(t *testing.T) {
	order := &model.Order{ID: 3, UserID: member.UserID, Total: 500, Status: model.OrderStatusCancelled}
	repo := &stubRepo{order: &model.Order{ID: 3, UserID: member.UserID}, cancelledOrder: order}
	notif := &stubNotifier{}

	svc := newTestService(repo, nil, notif)

	if _, err := svc.CancelOrder(context.Background(), member, 3, "changed my mind"); err != nil {
		t.Fatalf("owner cancel error: %v", err)
	}
	if _, err := svc.CancelOrder(context.Background(), admin, 3, "out of stock"); err != nil {
		t.Fatalf("admin cancel error: %v", err)
	}
	if notif.cancelled != 2 {
		t.Fatalf("cancellation notifications = %d, want 2", notif.cancelled)
	}
}

func TestCancelOrder_ForeignOwnerForbidden(t *testing.T) {
	repo := &stubRepo{order: &model.Order{ID: 3, UserID: 999}}

	svc := newTestService(repo, nil, nil)

	if _, err := svc.CancelOrder(context.Background(), member, 3, ""); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
}

func TestGrantPoints_Validation(t *testing.T) {
	repo := &stubRepo{}
	svc := newTestService(repo, nil, nil)

	if err := svc.GrantPoints(context.Background(), member, 1, 100, 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden for member, got %v", err)
	}
	if err := svc.GrantPoints(context.Background(), admin, 1, -1, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for negative amount, got %v", err)
	}
	if err := svc.GrantPoints(context.Background(), admin, 1, 0, 0); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for zero grant, got %v", err)
	}
	if err := svc.GrantPoints(context.Background(), admin, 1, 100, 50); err != nil {
		t.Fatalf("GrantPoints error: %v", err)
	}
	if repo.grantedEarned != 100 || repo.grantedBonus != 50 {
		t.Fatalf("granted = %d/%d, want 100/50", repo.grantedEarned, repo.grantedBonus)
	}
}
