// internal/circulation/implementation_test.go
package circulation_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"circulib/internal/circulation"
)

func TestRequestLoanCreatesPendingLoan(t *testing.T) {
	svc, mem := newTestService(testConfig())
	seedDocument(mem, "D1", false)

	pid, loan, err := svc.RequestLoan(context.Background(), circulation.RequestLoanParams{
		DocumentPID:            "D1",
		PatronPID:              "42",
		TransactionLocationPID: "L1",
		TransactionUserPID:     "42",
		Delivery:               pickup(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, pid)
	assert.Equal(t, "PENDING", loan.State)
	assert.Equal(t, "42", loan.PatronPID)
	assert.Equal(t, "D1", loan.DocumentPID)
	require.NotNil(t, loan.RequestStartDate)
	require.NotNil(t, loan.RequestExpireDate)
	assert.Equal(t, loan.RequestStartDate.AddDate(0, 0, 60), *loan.RequestExpireDate)

	stored := mem.GetStoredLoan(pid)
	require.NotNil(t, stored)
	assert.Equal(t, "PENDING", stored.State)
}

func TestRequestLoanRejectsSecondRequestOnDocument(t *testing.T) {
	svc, mem := newTestService(testConfig())
	seedDocument(mem, "D1", false)

	params := circulation.RequestLoanParams{
		DocumentPID:            "D1",
		PatronPID:              "42",
		TransactionLocationPID: "L1",
		Delivery:               pickup(),
	}
	_, _, err := svc.RequestLoan(context.Background(), params)
	require.NoError(t, err)

	_, _, err = svc.RequestLoan(context.Background(), params)
	var conflict *circulation.PatronHasRequestOnDocumentError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "42", conflict.PatronPID)
	assert.Equal(t, "D1", conflict.DocumentPID)
}

func TestRequestLoanRejectsWhenPatronHasActiveLoanOnDocument(t *testing.T) {
	svc, mem := newTestService(testConfig())
	seedDocument(mem, "D1", false)
	seedItem(mem, "I1", "B-1", "D1", circulation.ItemStatusCanCirculate, "")

	_, _, err := svc.CheckoutLoan(context.Background(), circulation.CheckoutParams{
		ItemPID:                "I1",
		PatronPID:              "42",
		TransactionLocationPID: "L1",
	})
	require.NoError(t, err)

	_, _, err = svc.RequestLoan(context.Background(), circulation.RequestLoanParams{
		DocumentPID:            "D1",
		PatronPID:              "42",
		TransactionLocationPID: "L1",
		Delivery:               pickup(),
	})
	var conflict *circulation.PatronHasLoanOnDocumentError
	require.ErrorAs(t, err, &conflict)
}

func TestRequestLoanRequiresConfiguredDeliveryMethod(t *testing.T) {
	svc, mem := newTestService(testConfig())
	seedDocument(mem, "D1", false)

	_, _, err := svc.RequestLoan(context.Background(), circulation.RequestLoanParams{
		DocumentPID:            "D1",
		PatronPID:              "42",
		TransactionLocationPID: "L1",
	})
	var missing *circulation.MissingRequiredParameterError
	require.ErrorAs(t, err, &missing)

	_, _, err = svc.RequestLoan(context.Background(), circulation.RequestLoanParams{
		DocumentPID:            "D1",
		PatronPID:              "42",
		TransactionLocationPID: "L1",
		Delivery:               &circulation.Delivery{Method: "CARRIER-PIGEON"},
	})
	require.ErrorAs(t, err, &missing)
}

func TestRequestLoanAllowsAnyDeliveryWhenNoneConfigured(t *testing.T) {
	cfg := testConfig()
	cfg.DeliveryMethods = nil
	svc, mem := newTestService(cfg)
	seedDocument(mem, "D1", false)

	_, loan, err := svc.RequestLoan(context.Background(), circulation.RequestLoanParams{
		DocumentPID:            "D1",
		PatronPID:              "42",
		TransactionLocationPID: "L1",
	})
	require.NoError(t, err)
	assert.Equal(t, "PENDING", loan.State)
}

func TestCheckoutLoanSetsDatesAndItemState(t *testing.T) {
	svc, mem := newTestService(testConfig())
	seedDocument(mem, "D1", false)
	seedItem(mem, "I1", "B-1", "D1", circulation.ItemStatusCanCirculate, circulation.RestrictionTwoWeeks)

	pid, loan, err := svc.CheckoutLoan(context.Background(), circulation.CheckoutParams{
		ItemPID:                "I1",
		PatronPID:              "42",
		TransactionLocationPID: "L1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ITEM_ON_LOAN", loan.State)
	assert.Equal(t, "D1", loan.DocumentPID)
	require.NotNil(t, loan.StartDate)
	require.NotNil(t, loan.EndDate)
	assert.Equal(t, loan.StartDate.AddDate(0, 0, 14), *loan.EndDate)

	item := mem.GetStoredItem("I1")
	assert.Equal(t, "ITEM_ON_LOAN", item.Circulation.State)
	assert.Equal(t, pid, item.Circulation.LoanPID)
}

func TestCheckoutLoanRejectsSecondLoanOnItem(t *testing.T) {
	svc, mem := newTestService(testConfig())
	seedDocument(mem, "D1", false)
	seedItem(mem, "I1", "B-1", "D1", circulation.ItemStatusCanCirculate, "")

	params := circulation.CheckoutParams{
		ItemPID:                "I1",
		PatronPID:              "42",
		TransactionLocationPID: "L1",
	}
	_, _, err := svc.CheckoutLoan(context.Background(), params)
	require.NoError(t, err)

	_, _, err = svc.CheckoutLoan(context.Background(), params)
	var conflict *circulation.PatronHasLoanOnItemError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "I1", conflict.ItemPID)
}

func TestCheckoutLoanReusesPendingRequest(t *testing.T) {
	svc, mem := newTestService(testConfig())
	seedDocument(mem, "D1", false)
	seedItem(mem, "I1", "B-1", "D1", circulation.ItemStatusCanCirculate, "")

	requestPID, _, err := svc.RequestLoan(context.Background(), circulation.RequestLoanParams{
		DocumentPID:            "D1",
		PatronPID:              "42",
		TransactionLocationPID: "L1",
		Delivery:               pickup(),
	})
	require.NoError(t, err)

	checkoutPID, loan, err := svc.CheckoutLoan(context.Background(), circulation.CheckoutParams{
		ItemPID:                "I1",
		PatronPID:              "42",
		TransactionLocationPID: "L2",
		TransactionUserPID:     "librarian-1",
	})
	require.NoError(t, err)
	assert.Equal(t, requestPID, checkoutPID, "checkout should reuse the pending request")
	assert.Equal(t, "ITEM_ON_LOAN", loan.State)
	assert.Equal(t, "L2", loan.TransactionLocationPID)
	assert.Equal(t, "librarian-1", loan.TransactionUserPID)
}

func TestForcedCheckoutResetsItemStatus(t *testing.T) {
	svc, mem := newTestService(testConfig())
	seedDocument(mem, "D1", false)
	seedItem(mem, "I1", "B-1", "D1", circulation.ItemStatusMissing, "")

	_, loan, err := svc.CheckoutLoan(context.Background(), circulation.CheckoutParams{
		ItemPID:                "I1",
		PatronPID:              "42",
		TransactionLocationPID: "L1",
		Force:                  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ITEM_ON_LOAN", loan.State)
	assert.Equal(t, circulation.ItemStatusCanCirculate, mem.GetStoredItem("I1").Status)
}

func TestCheckoutWithoutForceFailsOnMissingItem(t *testing.T) {
	svc, mem := newTestService(testConfig())
	seedDocument(mem, "D1", false)
	seedItem(mem, "I1", "B-1", "D1", circulation.ItemStatusMissing, "")

	_, _, err := svc.CheckoutLoan(context.Background(), circulation.CheckoutParams{
		ItemPID:                "I1",
		PatronPID:              "42",
		TransactionLocationPID: "L1",
	})
	var rejected *circulation.TransitionError
	require.ErrorAs(t, err, &rejected)
}

func TestSelfCheckoutForcesDeliveryMethod(t *testing.T) {
	svc, mem := newTestService(testConfig())
	seedDocument(mem, "D1", false)
	seedItem(mem, "I1", "B-1", "D1", circulation.ItemStatusCanCirculate, "")

	_, loan, err := svc.SelfCheckout(context.Background(), circulation.SelfCheckoutParams{
		ItemPID:                "I1",
		PatronPID:              "42",
		TransactionLocationPID: "L1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ITEM_ON_LOAN", loan.State)
	require.NotNil(t, loan.Delivery)
	assert.Equal(t, circulation.DeliveryMethodSelfCheckout, loan.Delivery.Method)
}

func TestSelfCheckoutHealsMissingItem(t *testing.T) {
	svc, mem := newTestService(testConfig())
	seedDocument(mem, "D1", false)
	seedItem(mem, "I1", "B-1", "D1", circulation.ItemStatusMissing, "")

	_, loan, err := svc.SelfCheckout(context.Background(), circulation.SelfCheckoutParams{
		ItemPID:                "I1",
		PatronPID:              "42",
		TransactionLocationPID: "L1",
	})
	require.NoError(t, err)
	assert.Equal(t, "ITEM_ON_LOAN", loan.State)
	assert.Equal(t, circulation.ItemStatusCanCirculate, mem.GetStoredItem("I1").Status)
}

func TestSelfCheckoutRejectsOverbookedDocument(t *testing.T) {
	svc, mem := newTestService(testConfig())
	seedDocument(mem, "D1", true)
	seedItem(mem, "I1", "B-1", "D1", circulation.ItemStatusCanCirculate, "")

	_, _, err := svc.SelfCheckout(context.Background(), circulation.SelfCheckoutParams{
		ItemPID:                "I1",
		PatronPID:              "42",
		TransactionLocationPID: "L1",
	})
	var overbooked *circulation.DocumentOverbookedError
	require.ErrorAs(t, err, &overbooked)
	assert.Equal(t, "D1", overbooked.DocumentPID)
}

func TestResolveItemByBarcode(t *testing.T) {
	svc, mem := newTestService(testConfig())
	seedDocument(mem, "D1", false)
	seedItem(mem, "I1", "B-1", "D1", circulation.ItemStatusCanCirculate, "")

	pid, item, err := svc.ResolveItemByBarcode(context.Background(), "B-1")
	require.NoError(t, err)
	assert.Equal(t, "I1", pid)
	assert.Equal(t, "B-1", item.Barcode)
}

func TestResolveItemByBarcodeNotFound(t *testing.T) {
	svc, _ := newTestService(testConfig())

	_, _, err := svc.ResolveItemByBarcode(context.Background(), "NOPE")
	var notFound *circulation.ItemNotFoundError
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "NOPE", notFound.Barcode)
}

func TestResolveItemByBarcodeAmbiguous(t *testing.T) {
	svc, mem := newTestService(testConfig())
	seedDocument(mem, "D1", false)
	seedItem(mem, "I1", "B-1", "D1", circulation.ItemStatusCanCirculate, "")
	seedItem(mem, "I2", "B-1", "D1", circulation.ItemStatusCanCirculate, "")

	_, _, err := svc.ResolveItemByBarcode(context.Background(), "B-1")
	var ambiguous *circulation.MultipleItemsBarcodeFoundError
	require.ErrorAs(t, err, &ambiguous)
}
