package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/asoud/payment-core/internal/domain/ledger"
	"github.com/asoud/payment-core/internal/domain/wallet"
)

type MockWalletService struct {
	mock.Mock
}

func (m *MockWalletService) CreateWallet(ctx context.Context, ownerID uuid.UUID, ownerType wallet.OwnerType, currency string) (*wallet.Account, error) {
	args := m.Called(ctx, ownerID, ownerType, currency)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*wallet.Account), args.Error(1)
}

func (m *MockWalletService) WalletBalance(ctx context.Context, accountID uuid.UUID) (*wallet.Account, int64, error) {
	args := m.Called(ctx, accountID)
	var acct *wallet.Account
	if v := args.Get(0); v != nil {
		acct = v.(*wallet.Account)
	}
	return acct, args.Get(1).(int64), args.Error(2)
}

func (m *MockWalletService) WalletEntries(ctx context.Context, accountID uuid.UUID, limit, offset int) ([]*ledger.Entry, int64, error) {
	args := m.Called(ctx, accountID, limit, offset)
	var entries []*ledger.Entry
	if v := args.Get(0); v != nil {
		entries = v.([]*ledger.Entry)
	}
	return entries, args.Get(1).(int64), args.Error(2)
}

func walletRouter(service WalletService) *gin.Engine {
	router := gin.New()
	h := NewWalletHandler(newTestLogger(), service)
	router.POST("/api/v1/wallets", h.Create)
	router.GET("/api/v1/wallets/:id/balance", h.Balance)
	router.GET("/api/v1/wallets/:id/entries", h.Entries)
	return router
}

func TestWalletHandler_Create(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		service := new(MockWalletService)
		router := walletRouter(service)

		owner := uuid.New()
		acct, err := wallet.NewAccount(owner, wallet.OwnerTypeMarket, "IRR")
		require.NoError(t, err)

		service.On("CreateWallet", mock.Anything, owner, wallet.OwnerTypeMarket, "IRR").Return(acct, nil)

		rec := doJSON(t, router, http.MethodPost, "/api/v1/wallets", map[string]any{
			"owner_id":   owner.String(),
			"owner_type": "MARKET",
			"currency":   "IRR",
		})

		assert.Equal(t, http.StatusCreated, rec.Code)
		resp := decodeEnvelope[WalletResponse](t, rec)
		assert.Equal(t, acct.ID.String(), resp.Data.ID)
		assert.Equal(t, "MARKET", resp.Data.OwnerType)
		assert.Zero(t, resp.Data.Balance)
	})

	t.Run("invalid owner type", func(t *testing.T) {
		service := new(MockWalletService)
		router := walletRouter(service)

		rec := doJSON(t, router, http.MethodPost, "/api/v1/wallets", map[string]any{
			"owner_id":   uuid.New().String(),
			"owner_type": "ADMIN",
			"currency":   "IRR",
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		service.AssertNotCalled(t, "CreateWallet", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestWalletHandler_Balance(t *testing.T) {
	t.Run("returns maintained and derived balance", func(t *testing.T) {
		service := new(MockWalletService)
		router := walletRouter(service)

		acct, err := wallet.NewAccount(uuid.New(), wallet.OwnerTypeUser, "IRR")
		require.NoError(t, err)
		acct.Balance = 700000

		service.On("WalletBalance", mock.Anything, acct.ID).Return(acct, int64(700000), nil)

		rec := doJSON(t, router, http.MethodGet, "/api/v1/wallets/"+acct.ID.String()+"/balance", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		resp := decodeEnvelope[WalletResponse](t, rec)
		assert.Equal(t, int64(700000), resp.Data.Balance)
		assert.Equal(t, int64(700000), resp.Data.LedgerBalance)
	})

	t.Run("unknown account", func(t *testing.T) {
		service := new(MockWalletService)
		router := walletRouter(service)

		id := uuid.New()
		service.On("WalletBalance", mock.Anything, id).
			Return(nil, int64(0), wallet.ErrAccountNotFound{AccountID: id})

		rec := doJSON(t, router, http.MethodGet, "/api/v1/wallets/"+id.String()+"/balance", nil)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestWalletHandler_Entries(t *testing.T) {
	t.Run("paginates", func(t *testing.T) {
		service := new(MockWalletService)
		router := walletRouter(service)

		accountID := uuid.New()
		entries := []*ledger.Entry{
			ledger.NewEntry(uuid.New(), accountID, -200000, 300000),
			ledger.NewEntry(uuid.New(), accountID, 500000, 500000),
		}

		service.On("WalletEntries", mock.Anything, accountID, 2, 2).Return(entries, int64(6), nil)

		rec := doJSON(t, router, http.MethodGet,
			fmt.Sprintf("/api/v1/wallets/%s/entries?page=2&per_page=2", accountID), nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		resp := decodeEnvelope[[]LedgerEntryResponse](t, rec)
		require.Len(t, resp.Data, 2)
		assert.Equal(t, int64(-200000), resp.Data[0].Delta)
		require.NotNil(t, resp.Meta)
		assert.Equal(t, 2, resp.Meta.Page)
		assert.Equal(t, 3, resp.Meta.TotalPages)
		assert.Equal(t, 6, resp.Meta.TotalItems)
	})

	t.Run("defaults pagination", func(t *testing.T) {
		service := new(MockWalletService)
		router := walletRouter(service)

		accountID := uuid.New()
		service.On("WalletEntries", mock.Anything, accountID, 10, 0).
			Return([]*ledger.Entry{}, int64(0), nil)

		rec := doJSON(t, router, http.MethodGet, "/api/v1/wallets/"+accountID.String()+"/entries", nil)

		assert.Equal(t, http.StatusOK, rec.Code)
		service.AssertExpectations(t)
	})

	t.Run("per_page above the cap", func(t *testing.T) {
		service := new(MockWalletService)
		router := walletRouter(service)

		rec := doJSON(t, router, http.MethodGet,
			"/api/v1/wallets/"+uuid.New().String()+"/entries?per_page=500", nil)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
