package reading

// ring is a fixed-capacity circular buffer of readings. New pushes
// overwrite the oldest entry when full. Not safe for concurrent use.
type ring struct {
	data  []Reading
	next  int
	count int
}

func newRing(capacity int) *ring {
	if capacity < 1 {
		capacity = 1
	}
	return &ring{data: make([]Reading, capacity)}
}

func (r *ring) push(rd Reading) {
	r.data[r.next] = rd
	r.next = (r.next + 1) % len(r.data)
	if r.count < len(r.data) {
		r.count++
	}
}

// each calls fn for every stored reading, oldest first.
func (r *ring) each(fn func(Reading)) {
	start := (r.next - r.count + len(r.data)) % len(r.data)
	for i := 0; i < r.count; i++ {
		fn(r.data[(start+i)%len(r.data)])
	}
}

func (r *ring) last() (Reading, bool) {
	if r.count == 0 {
		return Reading{}, false
	}
	return r.data[(r.next-1+len(r.data))%len(r.data)], true
}

func (r *ring) len() int {
	return r.count
}
