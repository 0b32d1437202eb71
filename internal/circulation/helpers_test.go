// internal/circulation/helpers_test.go
package circulation_test

import (
	"time"

	"circulib/internal/circulation"
	"circulib/internal/circulation/circtest"
	"circulib/internal/config"
	"circulib/internal/transitions"
)

func testConfig() *config.Config {
	return &config.Config{
		DeliveryMethods: map[string]string{
			"PICKUP":        "Pick it up at the library desk",
			"DELIVERY":      "Have it delivered",
			"SELF-CHECKOUT": "Self-checkout",
		},
		RequestStates:      []string{"PENDING"},
		ActiveStates:       []string{"ITEM_ON_LOAN"},
		CompletedStates:    []string{"ITEM_RETURNED"},
		CancelledStates:    []string{"CANCELLED"},
		RequestExpireAfter: 60 * 24 * time.Hour,
		MaxExtensions:      3,
	}
}

// newTestService wires the service over the in-memory collaborators and
// the real transition engine.
func newTestService(cfg *config.Config) (circulation.Service, *circtest.Memory) {
	mem := circtest.NewMemory(cfg)
	engine := transitions.NewEngine(mem, mem, mem, nil, cfg)
	svc := circulation.NewService(cfg, mem, mem, mem, engine, mem, mem)
	return svc, mem
}

func pickup() *circulation.Delivery {
	return &circulation.Delivery{Method: "PICKUP"}
}

func seedItem(mem *circtest.Memory, pid, barcode, documentPID, status, restriction string) {
	mem.AddItem(&circulation.Item{
		PID:                    pid,
		Barcode:                barcode,
		DocumentPID:            documentPID,
		Status:                 status,
		CirculationRestriction: restriction,
	})
}

func seedDocument(mem *circtest.Memory, pid string, overbooked bool) {
	mem.AddDocument(&circulation.Document{
		PID:   pid,
		Title: "A title",
		Circulation: circulation.DocumentCirculation{
			Overbooked: overbooked,
		},
	})
}

func datePtr(t time.Time) *time.Time {
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}
