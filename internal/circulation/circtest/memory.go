// internal/circulation/circtest/memory.go
// Package circtest provides in-memory implementations of the circulation
// collaborator interfaces for tests: a record store, a read model with
// explicit index writes, a PID allocator and a notification recorder.
package circtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"circulib/internal/circulation"
	"circulib/internal/config"
)

// Memory implements RecordStore, Indexer, SearchIndex, PIDAllocator and
// NotificationSender in memory. Like the real read model, searches only
// see records that have been explicitly indexed, so the eventual
// consistency of the production setup is reproducible in tests.
type Memory struct {
	mu  sync.Mutex
	cfg *config.Config

	loans     map[string]*circulation.Loan
	items     map[string]*circulation.Item
	documents map[string]*circulation.Document

	loanIndex map[string]circulation.LoanHit
	itemIndex map[string]*circulation.Item

	nextPID int

	// Notifications records every send, newest last.
	Notifications []Notification

	// Now is the clock used for expiring-loan queries.
	Now func() time.Time
}

// Notification is one recorded notification send.
type Notification struct {
	Kind    string
	LoanPID string
}

func NewMemory(cfg *config.Config) *Memory {
	return &Memory{
		cfg:       cfg,
		loans:     make(map[string]*circulation.Loan),
		items:     make(map[string]*circulation.Item),
		documents: make(map[string]*circulation.Document),
		loanIndex: make(map[string]circulation.LoanHit),
		itemIndex: make(map[string]*circulation.Item),
		Now:       time.Now,
	}
}

// AddItem seeds an item record and indexes it.
func (m *Memory) AddItem(item *circulation.Item) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *item
	m.items[item.PID] = &copied
	indexed := copied
	m.itemIndex[item.PID] = &indexed
}

// AddDocument seeds a document record.
func (m *Memory) AddDocument(doc *circulation.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *doc
	m.documents[doc.PID] = &copied
}

// GetStoredLoan returns the persisted copy of a loan, or nil.
func (m *Memory) GetStoredLoan(pid string) *circulation.Loan {
	m.mu.Lock()
	defer m.mu.Unlock()
	loan, ok := m.loans[pid]
	if !ok {
		return nil
	}
	return loan.Copy()
}

// GetStoredItem returns the persisted copy of an item, or nil.
func (m *Memory) GetStoredItem(pid string) *circulation.Item {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[pid]
	if !ok {
		return nil
	}
	copied := *item
	return &copied
}

// RecordStore

func (m *Memory) GetLoan(_ context.Context, pid string) (*circulation.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	loan, ok := m.loans[pid]
	if !ok {
		return nil, fmt.Errorf("loan %s not found", pid)
	}
	return loan.Copy(), nil
}

func (m *Memory) CreateLoan(_ context.Context, loan *circulation.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.loans[loan.PID]; exists {
		return fmt.Errorf("loan %s already exists", loan.PID)
	}
	m.loans[loan.PID] = loan.Copy()
	return nil
}

func (m *Memory) UpdateLoan(_ context.Context, loan *circulation.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.loans[loan.PID]; !exists {
		return fmt.Errorf("loan %s not found", loan.PID)
	}
	m.loans[loan.PID] = loan.Copy()
	return nil
}

func (m *Memory) GetItem(_ context.Context, pid string) (*circulation.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[pid]
	if !ok {
		return nil, fmt.Errorf("item %s not found", pid)
	}
	copied := *item
	return &copied, nil
}

func (m *Memory) UpdateItem(_ context.Context, item *circulation.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.items[item.PID]; !exists {
		return fmt.Errorf("item %s not found", item.PID)
	}
	copied := *item
	m.items[item.PID] = &copied
	return nil
}

func (m *Memory) GetDocument(_ context.Context, pid string) (*circulation.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.documents[pid]
	if !ok {
		return nil, fmt.Errorf("document %s not found", pid)
	}
	copied := *doc
	return &copied, nil
}

// Indexer

func (m *Memory) IndexLoan(_ context.Context, loan *circulation.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loanIndex[loan.PID] = circulation.LoanHit{
		PID:         loan.PID,
		State:       loan.State,
		PatronPID:   loan.PatronPID,
		ItemPID:     loan.ItemPID,
		DocumentPID: loan.DocumentPID,
	}
	return nil
}

func (m *Memory) IndexItem(_ context.Context, item *circulation.Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *item
	m.itemIndex[item.PID] = &copied
	return nil
}

// SearchIndex

func (m *Memory) FindLoans(_ context.Context, q circulation.LoanQuery) ([]circulation.LoanHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var hits []circulation.LoanHit
	for _, hit := range m.loanIndex {
		if q.PatronPID != "" && hit.PatronPID != q.PatronPID {
			continue
		}
		if q.ItemPID != "" && hit.ItemPID != q.ItemPID {
			continue
		}
		if q.DocumentPID != "" && hit.DocumentPID != q.DocumentPID {
			continue
		}
		if len(q.States) > 0 && !containsState(q.States, hit.State) {
			continue
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (m *Memory) FindItemsByBarcode(_ context.Context, barcode string) ([]*circulation.Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var items []*circulation.Item
	for _, item := range m.itemIndex {
		if item.Barcode == barcode {
			copied := *item
			items = append(items, &copied)
		}
	}
	return items, nil
}

func (m *Memory) FindExpiringOrOverdueLoans(_ context.Context, patronPID string) ([]circulation.LoanHit, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := m.Now().Add(7 * 24 * time.Hour)
	var hits []circulation.LoanHit
	for _, hit := range m.loanIndex {
		if hit.PatronPID != patronPID || !containsState(m.cfg.ActiveStates, hit.State) {
			continue
		}
		loan, ok := m.loans[hit.PID]
		if !ok || loan.EndDate == nil || loan.EndDate.After(cutoff) {
			continue
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// PIDAllocator

func (m *Memory) Mint(_ context.Context, _ uuid.UUID, kind string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextPID++
	return fmt.Sprintf("%s-%d", kind, m.nextPID), nil
}

func (m *Memory) Resolve(_ context.Context, _, _ string) (uuid.UUID, error) {
	return uuid.Nil, fmt.Errorf("not implemented")
}

// NotificationSender

func (m *Memory) SendDatesUpdated(_ context.Context, loan *circulation.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notifications = append(m.Notifications, Notification{Kind: "dates_updated", LoanPID: loan.PID})
	return nil
}

func (m *Memory) SendLoanExtended(_ context.Context, loan *circulation.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Notifications = append(m.Notifications, Notification{Kind: "loan_extended", LoanPID: loan.PID})
	return nil
}

func containsState(states []string, state string) bool {
	for _, s := range states {
		if s == state {
			return true
		}
	}
	return false
}
