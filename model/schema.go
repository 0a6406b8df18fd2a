package model

// All returns every model managed by the schema, in creation order.
func All() []interface{} {
	return []interface{}{&User{}, &Track{}, &Playlist{}, &PlaylistTrack{}, &Like{}}
}
