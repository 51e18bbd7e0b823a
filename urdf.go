package so_sim

import (
	"encoding/xml"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

// Subset of the URDF schema: links, joints, origins, axes, and limits.
// Visual and collision geometry is the renderer's concern and is skipped.

type urdfRobot struct {
	XMLName xml.Name    `xml:"robot"`
	Name    string      `xml:"name,attr"`
	Links   []urdfLink  `xml:"link"`
	Joints  []urdfJoint `xml:"joint"`
}

type urdfLink struct {
	Name string `xml:"name,attr"`
}

type urdfJoint struct {
	Name   string      `xml:"name,attr"`
	Type   string      `xml:"type,attr"`
	Parent urdfRef     `xml:"parent"`
	Child  urdfRef     `xml:"child"`
	Origin *urdfOrigin `xml:"origin"`
	Axis   *urdfAxis   `xml:"axis"`
	Limit  *urdfLimit  `xml:"limit"`
}

type urdfRef struct {
	Link string `xml:"link,attr"`
}

type urdfOrigin struct {
	XYZ string `xml:"xyz,attr"`
	RPY string `xml:"rpy,attr"`
}

type urdfAxis struct {
	XYZ string `xml:"xyz,attr"`
}

type urdfLimit struct {
	Lower float64 `xml:"lower,attr"`
	Upper float64 `xml:"upper,attr"`
}

// LoadURDFFile parses a URDF file and builds the robot's link tree.
func LoadURDFFile(path string) (*Robot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read URDF file: %w", err)
	}
	return ParseURDF(data)
}

// ParseURDF builds a Robot from URDF XML.
func ParseURDF(data []byte) (*Robot, error) {
	var doc urdfRobot
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse URDF: %w", err)
	}
	if len(doc.Links) == 0 {
		return nil, fmt.Errorf("URDF %q declares no links", doc.Name)
	}

	links := make(map[string]*Node, len(doc.Links))
	for _, l := range doc.Links {
		if l.Name == "" {
			return nil, fmt.Errorf("URDF %q has a link with no name", doc.Name)
		}
		if _, dup := links[l.Name]; dup {
			return nil, fmt.Errorf("URDF %q declares link %q twice", doc.Name, l.Name)
		}
		links[l.Name] = NewNode(l.Name)
	}

	robot := &Robot{
		Name:   doc.Name,
		joints: make(map[string]*Joint, len(doc.Joints)),
	}

	isChild := make(map[string]bool, len(doc.Links))
	for _, dj := range doc.Joints {
		parent, ok := links[dj.Parent.Link]
		if !ok {
			return nil, fmt.Errorf("joint %q references unknown parent link %q", dj.Name, dj.Parent.Link)
		}
		child, ok := links[dj.Child.Link]
		if !ok {
			return nil, fmt.Errorf("joint %q references unknown child link %q", dj.Name, dj.Child.Link)
		}
		if isChild[dj.Child.Link] {
			return nil, fmt.Errorf("link %q has more than one parent joint", dj.Child.Link)
		}
		isChild[dj.Child.Link] = true
		parent.AddChild(child)

		origin := IdentityPose()
		if dj.Origin != nil {
			xyz, err := parseTriple(dj.Origin.XYZ)
			if err != nil {
				return nil, fmt.Errorf("joint %q origin xyz: %w", dj.Name, err)
			}
			rpy, err := parseTriple(dj.Origin.RPY)
			if err != nil {
				return nil, fmt.Errorf("joint %q origin rpy: %w", dj.Name, err)
			}
			origin.Pos = xyz
			origin.Quat = quatFromRPY(rpy)
		}

		axis := mgl64.Vec3{1, 0, 0}
		if dj.Axis != nil {
			v, err := parseTriple(dj.Axis.XYZ)
			if err != nil {
				return nil, fmt.Errorf("joint %q axis: %w", dj.Name, err)
			}
			if v.Len() == 0 {
				return nil, fmt.Errorf("joint %q has a zero axis", dj.Name)
			}
			axis = v.Normalize()
		}

		j := &Joint{
			Name:   dj.Name,
			Type:   JointType(dj.Type),
			Axis:   axis,
			origin: origin,
			child:  child,
		}
		if dj.Limit != nil {
			j.LimitLower = dj.Limit.Lower
			j.LimitUpper = dj.Limit.Upper
		}
		switch j.Type {
		case JointRevolute, JointContinuous, JointPrismatic, JointFixed:
		default:
			return nil, fmt.Errorf("joint %q has unsupported type %q", dj.Name, dj.Type)
		}
		child.Pose = origin
		if _, dup := robot.joints[dj.Name]; dup {
			return nil, fmt.Errorf("URDF %q declares joint %q twice", doc.Name, dj.Name)
		}
		robot.joints[dj.Name] = j
		robot.order = append(robot.order, dj.Name)
	}

	for _, l := range doc.Links {
		if !isChild[l.Name] {
			if robot.Root != nil {
				return nil, fmt.Errorf("URDF %q has multiple root links (%q, %q)", doc.Name, robot.Root.Name, l.Name)
			}
			robot.Root = links[l.Name]
		}
	}
	if robot.Root == nil {
		return nil, fmt.Errorf("URDF %q has no root link (joint cycle)", doc.Name)
	}

	robot.Root.UpdateWorldTree()
	return robot, nil
}

func parseTriple(s string) (mgl64.Vec3, error) {
	if strings.TrimSpace(s) == "" {
		return mgl64.Vec3{}, nil
	}
	parts := strings.Fields(s)
	if len(parts) != 3 {
		return mgl64.Vec3{}, fmt.Errorf("expected 3 values, got %d", len(parts))
	}
	var v mgl64.Vec3
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return mgl64.Vec3{}, fmt.Errorf("bad value %q: %w", p, err)
		}
		v[i] = f
	}
	return v, nil
}

// quatFromRPY converts URDF roll/pitch/yaw (fixed-axis XYZ) to a quaternion.
func quatFromRPY(rpy mgl64.Vec3) mgl64.Quat {
	qx := mgl64.QuatRotate(rpy.X(), mgl64.Vec3{1, 0, 0})
	qy := mgl64.QuatRotate(rpy.Y(), mgl64.Vec3{0, 1, 0})
	qz := mgl64.QuatRotate(rpy.Z(), mgl64.Vec3{0, 0, 1})
	return qz.Mul(qy).Mul(qx).Normalize()
}
