package labels

// Row: ラベル1枚分
type Row struct {
	Checked   bool   // 印刷対象フラグ
	Title     string // CSV 1列目
	Author    string // CSV 2列目
	Barcode   string // CSV 3列目
	ISBN      string // CSV 4列目
	Condition string // CSV 5列目
}

// Encoding is the character set of the exported CSV.
type Encoding string

const (
	// ラベルプリンタのソフトは CP932 しか読めない
	EncodingShiftJIS Encoding = "shift_jis"
	EncodingUTF8     Encoding = "utf-8"
)

var header = []string{"title", "author", "barcode", "isbn", "condition"}

func (r Row) record() []string {
	return []string{r.Title, r.Author, r.Barcode, r.ISBN, r.Condition}
}

func (r Row) empty() bool {
	return r.Title == "" && r.Author == "" && r.Barcode == "" && r.ISBN == "" && r.Condition == ""
}
