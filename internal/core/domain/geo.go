package domain

// Point represents a geographic coordinate (WGS 84).
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Coordinate3D is a Point plus elevation in meters. Paths are ordered
// sequences of Coordinate3D, first-to-last traversal order significant.
type Coordinate3D struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	Ele float64 `json:"ele"`
}

// Point returns the 2D projection of the coordinate.
func (c Coordinate3D) Point() Point {
	return Point{Lat: c.Lat, Lng: c.Lng}
}

// Bounds represents a geographic bounding box.
type Bounds struct {
	MinLat float64 `json:"min_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLat float64 `json:"max_lat"`
	MaxLng float64 `json:"max_lng"`
}

// PathBounds computes the bounding box of a path geometry.
func PathBounds(path []Coordinate3D) Bounds {
	if len(path) == 0 {
		return Bounds{}
	}
	b := Bounds{
		MinLat: path[0].Lat, MaxLat: path[0].Lat,
		MinLng: path[0].Lng, MaxLng: path[0].Lng,
	}
	for _, c := range path[1:] {
		if c.Lat < b.MinLat {
			b.MinLat = c.Lat
		}
		if c.Lat > b.MaxLat {
			b.MaxLat = c.Lat
		}
		if c.Lng < b.MinLng {
			b.MinLng = c.Lng
		}
		if c.Lng > b.MaxLng {
			b.MaxLng = c.Lng
		}
	}
	return b
}
