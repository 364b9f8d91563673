package model

// Release is a record in the label catalogue.
type Release struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Artist      string   `json:"artist"`
	CoverImage  string   `json:"coverImage"`
	ReleaseDate string   `json:"releaseDate"`
	Genres      []string `json:"genres,omitempty"`
	SpotifyURL  string   `json:"spotifyUrl,omitempty"`
	AppleURL    string   `json:"appleUrl,omitempty"`
	YoutubeURL  string   `json:"youtubeUrl,omitempty"`
	Featured    bool     `json:"featured"`
}

// MerchItem is a product in the merch store.
type MerchItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Image    string `json:"image"`
	Category string `json:"category"`
}

// PodcastEpisode is one episode of the label podcast.
type PodcastEpisode struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Guest       string `json:"guest,omitempty"`
	Duration    string `json:"duration"`
	CoverImage  string `json:"coverImage"`
	PublishDate string `json:"publishDate"`
	Description string `json:"description,omitempty"`
}
