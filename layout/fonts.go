package layout

// Fonts offered by the editor. The list is advisory; any family name is
// accepted on an element.
var fontFamilies = []string{
	"Arial",
	"Calibri",
	"Carlito",
	"Times New Roman",
	"Courier New",
	"Georgia",
	"Verdana",
	"Tahoma",
	"Trebuchet MS",
	"Lucida Sans",
	"Palatino",
	"Garamond",
	"Comic Sans MS",
	"Impact",
}

var fontSizes = []float64{8, 10, 12, 14, 16, 18, 20, 24, 28, 32, 36, 48, 72}

func FontFamilies() []string {
	return append([]string(nil), fontFamilies...)
}

func FontSizes() []float64 {
	return append([]float64(nil), fontSizes...)
}
