package queue

import "context"

// ExecForTest runs raw SQL against the store.
func (s *Store) ExecForTest(query string) error {
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}
