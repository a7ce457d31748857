package indicator

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCueSamplesPresent(t *testing.T) {
	for _, kind := range []cueKind{cueStart, cueStop, cueAnswer, cueCancel} {
		require.NotEmpty(t, cueSamples(kind), "cue %d", kind)
	}
	require.Empty(t, cueSamples(cueKind(99)))
}

func TestSynthesizeToneDurationAndFade(t *testing.T) {
	got := synthesizeTone(toneSpec{frequencyHz: 440, duration: 100 * time.Millisecond, volume: 0.2})
	require.Len(t, got, samplesForDuration(100*time.Millisecond))
	require.Equal(t, int16(0), got[0])
	require.Equal(t, int16(0), got[len(got)-1])

	peak := 0
	for _, s := range got {
		peak = max(peak, int(math.Abs(float64(s))))
	}
	require.LessOrEqual(t, peak, int(0.2*math.MaxInt16)+1)
}

func TestSynthesizeToneInvalidSpecReturnsEmpty(t *testing.T) {
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 0, duration: 100 * time.Millisecond, volume: 0.2}))
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 440, duration: 0, volume: 0.2}))
	require.Empty(t, synthesizeTone(toneSpec{frequencyHz: 440, duration: 100 * time.Millisecond, volume: 0}))
}

func TestSynthesizeCueInsertsGap(t *testing.T) {
	one := toneSpec{frequencyHz: 440, duration: 50 * time.Millisecond, volume: 0.1}
	got := synthesizeCue([]toneSpec{one, one})
	require.Len(t, got, 2*samplesForDuration(50*time.Millisecond)+samplesForDuration(20*time.Millisecond))
}

func TestSamplesForDuration(t *testing.T) {
	require.Equal(t, 0, samplesForDuration(0))
	require.Equal(t, 400, samplesForDuration(25*time.Millisecond))
}
