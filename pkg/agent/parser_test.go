package agent

import (
	"strings"
	"testing"
)

const sampleModelOutput = "## 目标\n内容A\n\n【准备】\n内容B\n关键问题：\n- q1\n- q2\n一、总结\n内容C"

func TestSectionHeadingForms(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"目标", "内容A"},
		{"准备", "内容B"},
		{"关键问题", "- q1\n- q2"},
		{"总结", "内容C"},
		{"不存在", ""},
	}
	for _, tt := range tests {
		if got := Section(sampleModelOutput, tt.name); got != tt.want {
			t.Errorf("Section(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSectionKeepsLongColonLines(t *testing.T) {
	long := strings.Repeat("很长", 14) + "："
	text := "建议：\n" + long + "\n第二行"

	got := Section(text, "建议")
	if !strings.Contains(got, long) || !strings.Contains(got, "第二行") {
		t.Errorf("Section = %q, want the long colon line kept as body", got)
	}
}

func TestListItems(t *testing.T) {
	text := "- a\n2. b\n• c\n普通行\n3、d"
	got := ListItems(text)
	want := []string{"a", "b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("ListItems = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("ListItems = %v, want %v", got, want)
		}
	}
}

func TestSectionItemsFallsBackToLines(t *testing.T) {
	text := "重点：\n第一点\n第二点"
	got := SectionItems(text, "重点")
	if len(got) != 2 || got[0] != "第一点" || got[1] != "第二点" {
		t.Errorf("SectionItems = %v", got)
	}

	if got := SectionItems(text, "缺失"); got != nil {
		t.Errorf("SectionItems for missing section = %v, want nil", got)
	}
}

func TestFirstLine(t *testing.T) {
	if got := FirstLine("\n\n  第一行  \n第二行"); got != "第一行" {
		t.Errorf("FirstLine = %q, want 第一行", got)
	}
	if got := FirstLine("   \n\t\n"); got != "" {
		t.Errorf("FirstLine of blank text = %q, want empty", got)
	}
}
