package pipeline

const DefaultSmoothingWindow = 3

type Smoother struct {
	ring []RawReading
	next int
	size int
}

func NewSmoother(window int) *Smoother {
	if window < 1 {
		window = DefaultSmoothingWindow
	}
	return &Smoother{ring: make([]RawReading, window)}
}

func (s *Smoother) Push(r RawReading) SmoothedLocation {
	s.ring[s.next] = r
	s.next = (s.next + 1) % len(s.ring)
	if s.size < len(s.ring) {
		s.size++
	}

	if s.size < 2 {
		return SmoothedLocation{Lat: r.Lat, Lon: r.Lon, AccuracyMeters: r.AccuracyMeters, CapturedAt: r.CapturedAt}
	}

	var latSum, lonSum, weightSum float64
	best := r.AccuracyMeters
	for i, reading := range s.Window() {
		w := float64(i + 1)
		latSum += reading.Lat * w
		lonSum += reading.Lon * w
		weightSum += w
		if reading.AccuracyMeters < best {
			best = reading.AccuracyMeters
		}
	}

	return SmoothedLocation{
		Lat:            latSum / weightSum,
		Lon:            lonSum / weightSum,
		AccuracyMeters: best,
		CapturedAt:     r.CapturedAt,
	}
}

func (s *Smoother) Window() []RawReading {
	out := make([]RawReading, 0, s.size)
	start := (s.next - s.size + len(s.ring)) % len(s.ring)
	for i := 0; i < s.size; i++ {
		out = append(out, s.ring[(start+i)%len(s.ring)])
	}
	return out
}

func (s *Smoother) Len() int {
	return s.size
}

func (s *Smoother) Reset() {
	for i := range s.ring {
		s.ring[i] = RawReading{}
	}
	s.next = 0
	s.size = 0
}
