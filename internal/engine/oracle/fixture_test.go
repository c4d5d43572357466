package oracle

import (
	"encoding/json"
	"fmt"
)

type fixtureBiz struct {
	name    string
	cid     string
	placeID string
}

// mapsResponse builds a tbm=map body shaped like the real one: anti-XSS
// prefix, metadata at root[0][1][0], businesses at root[0][1][i][14].
func mapsResponse(businesses ...fixtureBiz) []byte {
	items := []any{[]any{"metadata"}}
	for _, b := range businesses {
		biz := make([]any, 79)
		biz[4] = []any{nil, nil, nil, nil, nil, nil, nil, 4.5, 120.0}
		biz[9] = []any{nil, nil, 37.5, 127.0}
		biz[10] = b.cid
		biz[11] = b.name
		biz[13] = []any{"Dentist"}
		biz[18] = "1 Main St"
		biz[78] = b.placeID

		item := make([]any, 15)
		item[14] = biz
		items = append(items, item)
	}

	body, err := json.Marshal([]any{[]any{"query", items}})
	if err != nil {
		panic(err)
	}
	return append([]byte(")]}'\n"), body...)
}

func window(n int) []fixtureBiz {
	out := make([]fixtureBiz, n)
	for i := range out {
		out[i] = fixtureBiz{
			name:    fmt.Sprintf("Biz %d", i+1),
			cid:     fmt.Sprintf("cid-%d", i+1),
			placeID: fmt.Sprintf("place-%d", i+1),
		}
	}
	return out
}
