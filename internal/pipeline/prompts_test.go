package pipeline

import (
	"strings"
	"testing"
)

func TestBuildSystemInstruction(t *testing.T) {
	got := BuildSystemInstruction(testReference(t))

	for _, want := range []string{
		`Отд 3 -> ПУ "Север"`,
		`Отд 17 -> ПУ "Юг"`,
		"- 2-я подкормка\n",
		"- Сахарная свекла\n",
		`"сах св" = "Сахарная свекла"`,
		"Example 1:\n```\nОтд 12 сев сах св 25/475\n```",
		`"Подразделение": "ПУ \"Юг\""`,
		`"За день, га": "25"`,
		`"Исходное сообщение": "Отд 12 сев сах св 25/475"`,
		`"Дата", "Подразделение", "Операция", "Культура", "За день, га", "С начала операции, га", "Вал за день, ц", "Вал с начала, ц", "Исходное сообщение"`,
		"Never emit one object per department.",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("BuildSystemInstruction() missing %q", want)
		}
	}

	if strings.Index(got, `"пах"`) > strings.Index(got, `"сах св"`) {
		t.Error("abbreviations are not sorted")
	}
}

func TestBuildUserMessage(t *testing.T) {
	if got := BuildUserMessage("one"); got != "one" {
		t.Errorf("BuildUserMessage(one) = %q", got)
	}
	want := "one" + BatchSeparator + "two"
	if got := BuildUserMessage("one", "two"); got != want {
		t.Errorf("BuildUserMessage(one, two) = %q, want %q", got, want)
	}
}
