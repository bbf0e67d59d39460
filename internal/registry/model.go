package registry

// Column описывает одну проекцию: колонка типизированного staging
// и откуда/как она считается из payload.
type Column struct {
	Name   string `yaml:"name"`
	Path   string `yaml:"path"`             // dotted-путь внутри payload
	Type   string `yaml:"type"`             // string | number | date
	Format string `yaml:"format,omitempty"` // layout для date, по умолчанию 2006-01-02
}

// Entity описывает один датасет каталога
type Entity struct {
	Name         string   `yaml:"-"`
	FolderGlob   string   `yaml:"folderGlob"`
	Pointer      string   `yaml:"pointer"` // "item" = корень уже список
	CoreTable    string   `yaml:"coreTable"`
	RawTable     string   `yaml:"rawTable"`
	StagingTable string   `yaml:"stagingTable"`
	Key          string   `yaml:"key"`
	DependsOn    []string `yaml:"dependsOn"`
	Columns      []Column `yaml:"columns"`
	UpdateFields []string `yaml:"updateFields"`
}

// ColumnNames возвращает имена колонок в объявленном порядке
func (e *Entity) ColumnNames() []string {
	out := make([]string, 0, len(e.Columns))
	for _, c := range e.Columns {
		out = append(out, c.Name)
	}
	return out
}

// HasColumn проверяет, объявлена ли колонка в проекции
func (e *Entity) HasColumn(name string) bool {
	for _, c := range e.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}
