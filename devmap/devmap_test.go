package devmap

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/devicesdk/models"
)

func testDevice(id, name string) *models.Device {
	return &models.Device{
		ID:      id,
		Name:    name,
		Profile: &models.DeviceProfile{Name: "profile-" + name},
	}
}

func TestMap_InsertFind(t *testing.T) {
	m := New()
	require.True(t, m.Insert(testDevice("id1", "dev1")))

	h := m.FindByName("dev1")
	require.NotNil(t, h)
	assert.Equal(t, "id1", h.Device().ID)
	h.Release()

	h = m.FindByID("id1")
	require.NotNil(t, h)
	assert.Equal(t, "dev1", h.Device().Name)
	h.Release()

	assert.Nil(t, m.FindByName("ghost"))
	assert.Nil(t, m.FindByID("ghost"))
	assert.Equal(t, 1, m.Count())
}

func TestMap_InsertRejectsDuplicates(t *testing.T) {
	m := New()
	require.True(t, m.Insert(testDevice("id1", "dev1")))
	assert.False(t, m.Insert(testDevice("id1", "other")))
	assert.False(t, m.Insert(testDevice("other", "dev1")))
	assert.False(t, m.Insert(nil))
	assert.False(t, m.Insert(&models.Device{Name: "no-id"}))
}

func TestMap_RemoveWaitsForHandles(t *testing.T) {
	m := New()
	require.True(t, m.Insert(testDevice("id1", "dev1")))

	h := m.FindByName("dev1")
	require.NotNil(t, h)

	removed := make(chan bool)
	go func() {
		removed <- m.RemoveByID("id1")
	}()

	// Removal must not complete while the handle is held.
	select {
	case <-removed:
		t.Fatal("RemoveByID returned while a handle was outstanding")
	case <-time.After(50 * time.Millisecond):
	}

	// The held device stays readable even though it left the map.
	assert.Equal(t, "dev1", h.Device().Name)
	assert.NotNil(t, h.Device().Profile)
	assert.Nil(t, m.FindByName("dev1"))

	h.Release()
	assert.True(t, <-removed)
	assert.Equal(t, 0, m.Count())
}

func TestMap_RemoveUnknown(t *testing.T) {
	m := New()
	assert.False(t, m.RemoveByID("nope"))
}

func TestMap_Update(t *testing.T) {
	m := New()
	require.True(t, m.Insert(testDevice("id1", "dev1")))

	h := m.FindByName("dev1")
	require.NotNil(t, h)

	renamed := testDevice("id1", "dev1-renamed")
	require.True(t, m.Update(renamed))

	// New lookups observe the replacement; the old name is gone.
	assert.Nil(t, m.FindByName("dev1"))
	h2 := m.FindByName("dev1-renamed")
	require.NotNil(t, h2)
	h2.Release()

	// The held handle still reads the old snapshot.
	assert.Equal(t, "dev1", h.Device().Name)
	h.Release()

	assert.False(t, m.Update(testDevice("unknown", "x")))
}

func TestMap_Populate(t *testing.T) {
	m := New()
	devs := []*models.Device{
		testDevice("id1", "dev1"),
		testDevice("id2", "dev2"),
		nil,
		{ID: "id3", Name: "no-profile"},
		testDevice("id1", "dup-id"),
	}
	assert.Equal(t, 2, m.Populate(devs))
	assert.Equal(t, 2, m.Count())
}

func TestMap_Snapshot(t *testing.T) {
	m := New()
	require.True(t, m.Insert(testDevice("id1", "dev1")))
	require.True(t, m.Insert(testDevice("id2", "dev2")))

	snap := m.Snapshot()
	require.Len(t, snap, 2)

	// Snapshot entries are copies; mutating them leaves the map alone.
	snap[0].Name = "mutated"
	names := map[string]bool{}
	for _, d := range m.Snapshot() {
		names[d.Name] = true
	}
	assert.True(t, names["dev1"])
	assert.True(t, names["dev2"])
}

func TestMap_Clear(t *testing.T) {
	m := New()
	for i := 0; i < 10; i++ {
		require.True(t, m.Insert(testDevice(fmt.Sprintf("id%d", i), fmt.Sprintf("dev%d", i))))
	}
	m.Clear()
	assert.Equal(t, 0, m.Count())
}

func TestMap_ConcurrentLookupAndRemove(t *testing.T) {
	m := New()
	for i := 0; i < 50; i++ {
		require.True(t, m.Insert(testDevice(fmt.Sprintf("id%d", i), fmt.Sprintf("dev%d", i))))
	}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		name := fmt.Sprintf("dev%d", i)
		id := fmt.Sprintf("id%d", i)
		go func() {
			defer wg.Done()
			if h := m.FindByName(name); h != nil {
				// Readers always observe a resolved profile.
				assert.NotNil(t, h.Device().Profile)
				h.Release()
			}
		}()
		go func() {
			defer wg.Done()
			m.RemoveByID(id)
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, m.Count())
}
