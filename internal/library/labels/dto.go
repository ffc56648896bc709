package labels

// ExportRequest: /labels/export
type ExportRequest struct {
	ItemIDs  []string `json:"item_ids" binding:"required"`
	Encoding string   `json:"encoding"` // 省略時は shift_jis
	Header   bool     `json:"header"`
}

// リクエスト例
/*
	{
		"item_ids": ["01HV8Z4Q6M7W1TQ2V3X4Y5Z6A7", "01HV8Z4Q6M7W1TQ2V3X4Y5Z6A8"],
		"encoding": "shift_jis",
		"header": false
	}
*/
