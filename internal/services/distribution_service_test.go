package services

import (
	"errors"
	"sync"
	"testing"
	"time"

	"ledger-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDistributionService(identity HierarchyProvider) *DistributionService {
	wallets := NewWalletService(testDB, testLogger())
	commission := NewCommissionService(testDB, identity, testLogger())
	audit := NewAuditService(testDB, nil, testLogger())
	return NewDistributionService(testDB, wallets, commission, audit, testLogger())
}

func seedSuccessTransaction(t *testing.T, userId int, amount int64) models.Transaction {
	t.Helper()
	now := time.Now()
	trx := models.Transaction{
		UserId:        userId,
		WalletId:      1,
		TransactionNo: "TESTTRX",
		Amount:        amount,
		NetAmount:     amount,
		Status:        models.TrxStatusSuccess,
		PaymentType:   "recharge",
		ServiceId:     1,
		ProcessedAt:   &now,
		CompletedAt:   &now,
	}
	require.NoError(t, testDB.Create(&trx).Error)
	return trx
}

func seedCommissionWallets(t *testing.T, balance int64, userIds ...int) {
	t.Helper()
	for _, id := range userIds {
		seedWallet(t, id, models.WalletTypeCommission, balance)
	}
}

func seedDistributionRules(t *testing.T) {
	t.Helper()
	seedRoleSetting(t, models.RoleTop, 1, nil, models.CommissionTypePercentage, 2)
	seedRoleSetting(t, models.RoleRegionalHead, 1, nil, models.CommissionTypePercentage, 25)
	seedRoleSetting(t, models.RoleMasterDistributor, 1, nil, models.CommissionTypePercentage, 50)
	seedRoleSetting(t, models.RoleDistributor, 1, nil, models.CommissionTypePercentage, 20)
	seedRoleSetting(t, models.RoleAgent, 1, nil, models.CommissionTypePercentage, 100)
}

func commissionBalance(t *testing.T, userId int) int64 {
	t.Helper()
	var w models.Wallet
	require.NoError(t, testDB.Where("user_id = ? AND wallet_type = ?", userId, models.WalletTypeCommission).
		First(&w).Error)
	return w.Balance
}

func TestDistributeFiveMemberChain(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	seedDistributionRules(t)
	seedCommissionWallets(t, 10000, 1, 2, 3, 4, 5)
	trx := seedSuccessTransaction(t, 5, 10000)

	svc := newDistributionService(&fakeHierarchy{path: fivePersonPath()})
	require.NoError(t, svc.Distribute(trx.ID))

	// Pool 200 cascades as 50/75/15/60; each member nets receipt minus
	// what it pays downstream.
	assert.Equal(t, int64(10150), commissionBalance(t, 1))
	assert.Equal(t, int64(9975), commissionBalance(t, 2))
	assert.Equal(t, int64(10060), commissionBalance(t, 3))
	assert.Equal(t, int64(9955), commissionBalance(t, 4))
	assert.Equal(t, int64(10060), commissionBalance(t, 5))

	var earnings []models.CommissionEarning
	require.NoError(t, testDB.Where("transaction_id = ?", trx.ID).Order("id ASC").Find(&earnings).Error)
	require.Len(t, earnings, 5)
	assert.Nil(t, earnings[0].FromUserId)
	assert.Equal(t, int64(200), earnings[0].Amount)
	require.NotNil(t, earnings[1].FromUserId)
	assert.Equal(t, 1, *earnings[1].FromUserId)
	assert.Equal(t, int64(50), earnings[1].Amount)

	// Total paid into the network equals the pool.
	var sum int64
	for _, e := range earnings[1:] {
		sum += e.Amount
	}
	assert.Equal(t, int64(200), sum)
}

func TestDistributeZeroShareMember(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	// Only the top has a rule; the middle member falls back to the
	// zero-flat default and must not sink the distribution.
	seedRoleSetting(t, models.RoleTop, 1, nil, models.CommissionTypePercentage, 2)
	seedCommissionWallets(t, 10000, 1, 2, 3)
	trx := seedSuccessTransaction(t, 3, 10000)

	path := []HierarchyMember{
		{UserId: 1, Role: models.RoleTop, Level: 0},
		{UserId: 2, Role: models.RoleRegionalHead, Level: 1},
		{UserId: 3, Role: models.RoleAgent, Level: 2},
	}
	svc := newDistributionService(&fakeHierarchy{path: path})
	require.NoError(t, svc.Distribute(trx.ID))

	// Pool 200: top keeps it all minus the bottom's remainder, the
	// rule-less middle nets the pass-through.
	assert.Equal(t, int64(10200), commissionBalance(t, 1))
	assert.Equal(t, int64(9800), commissionBalance(t, 2))
	assert.Equal(t, int64(10200), commissionBalance(t, 3))

	// The zero-amount leg still leaves a receipt.
	var earnings []models.CommissionEarning
	require.NoError(t, testDB.Where("transaction_id = ?", trx.ID).Order("id ASC").Find(&earnings).Error)
	require.Len(t, earnings, 3)
	assert.Equal(t, int64(200), earnings[0].Amount)
	assert.Equal(t, int64(0), earnings[1].Amount)
	assert.Equal(t, 2, earnings[1].UserId)
	assert.Equal(t, int64(200), earnings[2].Amount)

	// Reversal handles the zero-amount receipt the same way.
	require.NoError(t, svc.Reverse(trx.ID))
	for _, userId := range []int{1, 2, 3} {
		assert.Equal(t, int64(10000), commissionBalance(t, userId))
	}
	var mirrors int64
	testDB.Model(&models.CommissionEarning{}).
		Where("transaction_id = ? AND is_reversal = ?", trx.ID, true).Count(&mirrors)
	assert.Equal(t, int64(3), mirrors)
}

func TestDistributeConcurrentDeliveriesPayOnce(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	seedDistributionRules(t)
	seedCommissionWallets(t, 10000, 1, 2, 3, 4, 5)
	trx := seedSuccessTransaction(t, 5, 10000)

	svc := newDistributionService(&fakeHierarchy{path: fivePersonPath()})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.Distribute(trx.ID)
		}(i)
	}
	wg.Wait()

	// The transaction row lock serializes the two deliveries; the loser
	// observes the winner's earnings and backs off.
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	var count int64
	testDB.Model(&models.CommissionEarning{}).Where("transaction_id = ?", trx.ID).Count(&count)
	assert.Equal(t, int64(5), count)
	assert.Equal(t, int64(10150), commissionBalance(t, 1))
	assert.Equal(t, int64(10060), commissionBalance(t, 5))
}

func TestReverseConcurrentRequestsClawOnce(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	seedDistributionRules(t)
	seedCommissionWallets(t, 10000, 1, 2, 3, 4, 5)
	trx := seedSuccessTransaction(t, 5, 10000)

	svc := newDistributionService(&fakeHierarchy{path: fivePersonPath()})
	require.NoError(t, svc.Distribute(trx.ID))

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = svc.Reverse(trx.ID)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	var mirrors int64
	testDB.Model(&models.CommissionEarning{}).
		Where("transaction_id = ? AND is_reversal = ?", trx.ID, true).Count(&mirrors)
	assert.Equal(t, int64(5), mirrors)
	for _, userId := range []int{1, 2, 3, 4, 5} {
		assert.Equal(t, int64(10000), commissionBalance(t, userId))
	}
}

func TestDistributeRedeliverySkipped(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	seedDistributionRules(t)
	seedCommissionWallets(t, 10000, 1, 2, 3, 4, 5)
	trx := seedSuccessTransaction(t, 5, 10000)

	svc := newDistributionService(&fakeHierarchy{path: fivePersonPath()})
	require.NoError(t, svc.Distribute(trx.ID))
	require.NoError(t, svc.Distribute(trx.ID))

	var count int64
	testDB.Model(&models.CommissionEarning{}).Where("transaction_id = ?", trx.ID).Count(&count)
	assert.Equal(t, int64(5), count)
	assert.Equal(t, int64(10150), commissionBalance(t, 1))
}

func TestDistributeMidChainInsufficientFundsAborts(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	seedDistributionRules(t)
	// User 2 receives 50 but owes 75; with an empty wallet the debit fails.
	seedCommissionWallets(t, 0, 1, 2, 3, 4, 5)
	trx := seedSuccessTransaction(t, 5, 10000)

	svc := newDistributionService(&fakeHierarchy{path: fivePersonPath()})
	err := svc.Distribute(trx.ID)
	assert.True(t, errors.Is(err, ErrInsufficientFunds))

	// The whole distribution rolled back: no earnings, no balance drift.
	var count int64
	testDB.Model(&models.CommissionEarning{}).Where("transaction_id = ?", trx.ID).Count(&count)
	assert.Equal(t, int64(0), count)
	for _, userId := range []int{1, 2, 3, 4, 5} {
		assert.Equal(t, int64(0), commissionBalance(t, userId))
	}
}

func TestDistributeNonSuccessRejected(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	trx := models.Transaction{
		UserId: 5, WalletId: 1, TransactionNo: "PEND", Amount: 10000, NetAmount: 10000,
		Status: models.TrxStatusPending, PaymentType: "recharge", ServiceId: 1,
	}
	require.NoError(t, testDB.Create(&trx).Error)

	svc := newDistributionService(&fakeHierarchy{path: fivePersonPath()})
	err := svc.Distribute(trx.ID)
	assert.True(t, errors.Is(err, ErrInvalidState))
}

func TestReverseRestoresBalances(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	seedDistributionRules(t)
	seedCommissionWallets(t, 10000, 1, 2, 3, 4, 5)
	trx := seedSuccessTransaction(t, 5, 10000)

	svc := newDistributionService(&fakeHierarchy{path: fivePersonPath()})
	require.NoError(t, svc.Distribute(trx.ID))
	require.NoError(t, svc.Reverse(trx.ID))

	for _, userId := range []int{1, 2, 3, 4, 5} {
		assert.Equal(t, int64(10000), commissionBalance(t, userId))
	}

	// History is preserved: originals plus negative mirrors.
	var earnings []models.CommissionEarning
	require.NoError(t, testDB.Where("transaction_id = ? AND is_reversal = ?", trx.ID, true).
		Find(&earnings).Error)
	require.Len(t, earnings, 5)
	for _, e := range earnings {
		assert.Negative(t, e.Amount)
		require.NotNil(t, e.Metadata.Reversal)
		assert.NotZero(t, e.Metadata.Reversal.OriginalEarningId)
	}
}

func TestReverseIsIdempotent(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	seedDistributionRules(t)
	seedCommissionWallets(t, 10000, 1, 2, 3, 4, 5)
	trx := seedSuccessTransaction(t, 5, 10000)

	svc := newDistributionService(&fakeHierarchy{path: fivePersonPath()})
	require.NoError(t, svc.Distribute(trx.ID))
	require.NoError(t, svc.Reverse(trx.ID))
	require.NoError(t, svc.Reverse(trx.ID))

	var count int64
	testDB.Model(&models.CommissionEarning{}).
		Where("transaction_id = ? AND is_reversal = ?", trx.ID, true).Count(&count)
	assert.Equal(t, int64(5), count)
	assert.Equal(t, int64(10000), commissionBalance(t, 1))
}

func TestReverseWithoutDistributionNoop(t *testing.T) {
	if testDB == nil {
		t.Skip("Database not configured")
	}
	defer cleanup()

	trx := seedSuccessTransaction(t, 5, 10000)
	svc := newDistributionService(&fakeHierarchy{path: fivePersonPath()})
	require.NoError(t, svc.Reverse(trx.ID))

	var count int64
	testDB.Model(&models.CommissionEarning{}).Count(&count)
	assert.Equal(t, int64(0), count)
}
