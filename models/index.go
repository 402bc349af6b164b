package models

import "strings"

// Index is the root aggregate of all regions.
type Index struct {
	Regions []*Region
}

// NewIndex returns an index over regions.
func NewIndex(regions ...*Region) *Index {
	return &Index{Regions: regions}
}

// RegionByID returns the region with id, or nil.
func (x *Index) RegionByID(id int) *Region {
	for _, r := range x.Regions {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// RegionByName returns the region named name (case-insensitive), or nil.
func (x *Index) RegionByName(name string) *Region {
	for _, r := range x.Regions {
		if strings.EqualFold(r.Name, name) {
			return r
		}
	}
	return nil
}

// Library returns the first library titled title across all regions.
func (x *Index) Library(title string) *Library {
	for _, r := range x.Regions {
		if lib := r.Library(title); lib != nil {
			return lib
		}
	}
	return nil
}

// Libraries flattens the libraries of every region in index order.
func (x *Index) Libraries() []*Library {
	var out []*Library
	for _, r := range x.Regions {
		out = append(out, r.Libraries...)
	}
	return out
}

// Jobs pairs every library with the name of its region.
func (x *Index) Jobs() []SearchJob {
	var out []SearchJob
	for _, r := range x.Regions {
		for _, lib := range r.Libraries {
			out = append(out, SearchJob{Region: r.Name, Library: lib})
		}
	}
	return out
}
