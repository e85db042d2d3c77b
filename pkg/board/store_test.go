package board

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testLayout() Layout {
	return Layout{LEDs: 4, PWMs: 2, Analogs: 3, Switches: 4, PWMMax: 255}
}

func TestStoreZeroed(t *testing.T) {
	s := NewStore(testLayout())
	require.Equal(t, []bool{false, false, false, false}, s.LEDValues())
	require.Equal(t, []int{0, 0}, s.PWMValues())
	require.Equal(t, []int{0, 0, 0}, s.AnalogValues())
	require.Equal(t, []bool{false, false, false, false}, s.SwitchValues())
}

func TestStorePutLengthMismatch(t *testing.T) {
	s := NewStore(testLayout())
	require.NoError(t, s.PutLEDValues([]bool{true, false, true, false}))

	require.ErrorIs(t, s.PutLEDValues([]bool{true}), ErrLengthMismatch)
	require.ErrorIs(t, s.PutPWMValues([]int{1, 2, 3}), ErrLengthMismatch)
	require.ErrorIs(t, s.PutAnalogValues(nil), ErrLengthMismatch)
	require.ErrorIs(t, s.PutSwitchValues([]bool{true}), ErrLengthMismatch)
	require.ErrorIs(t, s.PutInputs([]bool{true, true, true, true}, []int{1}), ErrLengthMismatch)

	require.Equal(t, []bool{true, false, true, false}, s.LEDValues())
	require.Equal(t, []int{0, 0}, s.PWMValues())
	require.Equal(t, []bool{false, false, false, false}, s.SwitchValues())
}

func TestStoreCopies(t *testing.T) {
	s := NewStore(testLayout())
	vals := []int{10, 20}
	require.NoError(t, s.PutPWMValues(vals))
	vals[0] = 99
	require.Equal(t, []int{10, 20}, s.PWMValues())

	out := s.PWMValues()
	out[1] = 42
	require.Equal(t, []int{10, 20}, s.PWMValues())
}

func TestStorePWMClamp(t *testing.T) {
	s := NewStore(testLayout())
	require.NoError(t, s.PutPWMValues([]int{-5, 300}))
	require.Equal(t, []int{0, 255}, s.PWMValues())
}

func TestStoreResetValues(t *testing.T) {
	s := NewStore(testLayout())
	var fired int
	s.SetNotifier(func() { fired++ })
	require.NoError(t, s.PutInputs([]bool{true, true, false, false}, []int{1, 2, 3}))
	require.NoError(t, s.PutPWMValues([]int{7, 8}))
	s.MarkUpdate(time.Unix(0, 0))
	s.MarkUpdate(time.Unix(1, 0))

	s.ResetValues()
	require.Equal(t, 1, fired)
	require.Equal(t, []int{0, 0, 0}, s.AnalogValues())
	require.Equal(t, []int{0, 0}, s.PWMValues())
	s.lock.Lock()
	require.Empty(t, s.deltas)
	require.True(t, s.lastUpdate.IsZero())
	s.lock.Unlock()
}

func TestStoreUpdateRate(t *testing.T) {
	s := NewStore(testLayout())
	start := time.Unix(1000, 0)
	s.MarkUpdate(start)
	for n := 1; n < RateWindow; n++ {
		s.MarkUpdate(start.Add(time.Duration(n) * 100 * time.Millisecond))
		_, ok := s.UpdateRate()
		require.False(t, ok, "%d deltas", n)
	}
	s.MarkUpdate(start.Add(RateWindow * 100 * time.Millisecond))
	rate, ok := s.UpdateRate()
	require.True(t, ok)
	require.InDelta(t, 10.0, rate, 1e-9)

	// oldest evicted, window stays full
	for n := 1; n <= 5; n++ {
		s.MarkUpdate(start.Add(RateWindow*100*time.Millisecond + time.Duration(n)*50*time.Millisecond))
	}
	s.lock.Lock()
	require.Len(t, s.deltas, RateWindow)
	s.lock.Unlock()
	rate, ok = s.UpdateRate()
	require.True(t, ok)
	require.InDelta(t, 1/0.075, rate, 1e-9)
}

func TestStoreUpdateRateNonPositive(t *testing.T) {
	s := NewStore(testLayout())
	now := time.Unix(1000, 0)
	for n := 0; n <= RateWindow; n++ {
		s.MarkUpdate(now)
	}
	_, ok := s.UpdateRate()
	require.False(t, ok)
}

func TestStoreStatus(t *testing.T) {
	s := NewStore(testLayout())
	s.SetState("Resetting control board", false)
	st := s.Status()
	require.Equal(t, "Resetting control board", st.Text())
	require.Nil(t, st.UpdateRate)

	s.SetState("Running", true)
	require.Equal(t, "Running, Calculating update rate...", s.Status().Text())

	start := time.Unix(0, 0)
	for n := 0; n <= RateWindow; n++ {
		s.MarkUpdate(start.Add(time.Duration(n) * 20 * time.Millisecond))
	}
	st = s.Status()
	require.NotNil(t, st.UpdateRate)
	require.Equal(t, "Running, Updating @ 50 Hz", st.Text())

	data, err := json.Marshal(st)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, "Running", decoded["state"])
	require.Equal(t, true, decoded["running"])
	require.Contains(t, decoded, "update_rate")
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := NewStore(testLayout())
	var wg sync.WaitGroup
	for n := 0; n < 4; n++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				require.NoError(t, s.PutPWMValues([]int{n, i}))
				require.NoError(t, s.PutInputs([]bool{true, false, true, false}, []int{n, i, n}))
				st := s.Status()
				require.Len(t, st.PWMs, 2)
				require.Len(t, st.Analogs, 3)
			}
		}(n)
	}
	wg.Wait()
}
