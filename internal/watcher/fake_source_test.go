package watcher

import "errors"

// fakeSource replays scripted batches, one per Pump.
type fakeSource struct {
	watched   map[ID]string
	batches   [][]Notification
	dup       bool
	batch     int
	perWatch  bool
	watchErr  error
	pumpErr   error
	closed    bool
	lastRoom  int
	pumpCalls int
}

func newFakeSource() *fakeSource {
	return &fakeSource{watched: make(map[ID]string), batch: 8}
}

func (s *fakeSource) queue(names ...Notification) {
	s.batches = append(s.batches, names)
}

func (s *fakeSource) Watch(id ID, dir string) error {
	if s.watchErr != nil {
		return s.watchErr
	}
	s.watched[id] = dir
	return nil
}

func (s *fakeSource) Pump(room int, emit func(Notification) error) error {
	s.pumpCalls++
	s.lastRoom = room
	if len(s.batches) > 0 {
		batch := s.batches[0]
		s.batches = s.batches[1:]
		for _, n := range batch {
			if room == 0 {
				return errors.New("fake source: out of room")
			}
			if err := emit(n); err != nil {
				return err
			}
			room--
		}
	}
	return s.pumpErr
}

func (s *fakeSource) DuplicatesWrites() bool { return s.dup }

func (s *fakeSource) BatchSize(watches int) int {
	if s.perWatch {
		return s.batch * watches
	}
	return s.batch
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}
