package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rushteam/simrec/core"
)

// LoadRatings 解析评分表 CSV：表头 userId,movieId,rating[,timestamp]（列顺序按表头识别）。
func LoadRatings(r io.Reader) ([]core.Interaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read ratings header: %w", err)
	}
	cols, err := columnIndex(header, "userId", "movieId", "rating")
	if err != nil {
		return nil, fmt.Errorf("ratings: %w", err)
	}

	var out []core.Interaction
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ratings line %d: %w", line, err)
		}
		uid, err := parseID(rec, cols["userId"])
		if err != nil {
			return nil, fmt.Errorf("ratings line %d: userId: %w", line, err)
		}
		iid, err := parseID(rec, cols["movieId"])
		if err != nil {
			return nil, fmt.Errorf("ratings line %d: movieId: %w", line, err)
		}
		rating, err := strconv.ParseFloat(field(rec, cols["rating"]), 64)
		if err != nil {
			return nil, fmt.Errorf("ratings line %d: rating: %w", line, err)
		}
		out = append(out, core.Interaction{UserID: uid, ItemID: iid, Rating: rating})
	}
	return out, nil
}

// LoadMovies 解析物品表 CSV：表头 movieId,title,genres；genres 以 '|' 分隔，
// "(no genres listed)" 视为空；其余列原样保存在 Fields 中。
func LoadMovies(r io.Reader) ([]core.ItemMeta, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read movies header: %w", err)
	}
	cols, err := columnIndex(header, "movieId", "title")
	if err != nil {
		return nil, fmt.Errorf("movies: %w", err)
	}
	genresCol, hasGenres := indexOf(header, "genres")

	var out []core.ItemMeta
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("movies line %d: %w", line, err)
		}
		iid, err := parseID(rec, cols["movieId"])
		if err != nil {
			return nil, fmt.Errorf("movies line %d: movieId: %w", line, err)
		}
		meta := core.ItemMeta{ItemID: iid, Title: field(rec, cols["title"])}
		if hasGenres {
			meta.Genres = splitGenres(field(rec, genresCol))
		}
		for i, name := range header {
			if i == cols["movieId"] || i == cols["title"] || (hasGenres && i == genresCol) || i >= len(rec) {
				continue
			}
			if meta.Fields == nil {
				meta.Fields = make(map[string]string)
			}
			meta.Fields[name] = rec[i]
		}
		out = append(out, meta)
	}
	return out, nil
}

// LoadTableFiles 读取评分表和物品表并构建 Table。
func LoadTableFiles(ratingsPath, moviesPath string) (*Table, error) {
	rf, err := os.Open(ratingsPath)
	if err != nil {
		return nil, fmt.Errorf("open ratings: %w", err)
	}
	defer rf.Close()
	interactions, err := LoadRatings(rf)
	if err != nil {
		return nil, err
	}

	mf, err := os.Open(moviesPath)
	if err != nil {
		return nil, fmt.Errorf("open movies: %w", err)
	}
	defer mf.Close()
	items, err := LoadMovies(mf)
	if err != nil {
		return nil, err
	}

	return NewTable(interactions, items)
}

func splitGenres(s string) []string {
	if s == "" || s == "(no genres listed)" {
		return nil
	}
	return strings.Split(s, "|")
}

func columnIndex(header []string, required ...string) (map[string]int, error) {
	cols := make(map[string]int, len(required))
	for _, name := range required {
		i, ok := indexOf(header, name)
		if !ok {
			return nil, fmt.Errorf("missing column %q in header %v", name, header)
		}
		cols[name] = i
	}
	return cols, nil
}

func indexOf(header []string, name string) (int, bool) {
	for i, h := range header {
		if strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")) == name {
			return i, true
		}
	}
	return 0, false
}

func field(rec []string, i int) string {
	if i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func parseID(rec []string, i int) (int64, error) {
	id, err := strconv.ParseInt(field(rec, i), 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, fmt.Errorf("id must be positive, got %d", id)
	}
	return id, nil
}
