package manga

import "context"

// CountFavorites returns how many favorite rows exist for the pair.
func (r *DBRepository) CountFavorites(ctx context.Context, userID, mangaID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM favorites WHERE user_id = ? AND manga_id = ?`, userID, mangaID).Scan(&n)
	return n, err
}
